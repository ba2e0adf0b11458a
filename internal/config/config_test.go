package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "command", cfg.Discovery.Method)
	assert.Equal(t, 1, cfg.Discovery.Low)
	assert.Equal(t, 20, cfg.Discovery.High)
	assert.Equal(t, 500*time.Millisecond, cfg.Scanning.DialTimeout)
	assert.Equal(t, DefaultPorts, cfg.Scanning.DefaultPorts)
	assert.Len(t, cfg.Scanning.DefaultPorts, 20)
	assert.Equal(t, 100, cfg.Capture.PreviewLimit)
	assert.Equal(t, 5, cfg.Capture.TopN)
	assert.NoError(t, cfg.Validate())

	// The default slice must not alias the package variable.
	cfg.Scanning.DefaultPorts[0] = 1
	assert.Equal(t, 21, DefaultPorts[0])
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid yaml config",
			path: func(t *testing.T) string {
				return writeConfig(t, "config.yaml", `
discovery:
  method: icmp
  low: 10
  high: 50
  ping_timeout: 2s
  rate_limit:
    enabled: true
    requests_per_second: 25
scanning:
  dial_timeout: 250ms
  default_ports: [22, 443]
logging:
  level: debug
  format: json
`)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "icmp", cfg.Discovery.Method)
				assert.Equal(t, 10, cfg.Discovery.Low)
				assert.Equal(t, 50, cfg.Discovery.High)
				assert.Equal(t, 2*time.Second, cfg.Discovery.PingTimeout)
				assert.Equal(t, time.Second, cfg.Discovery.DNSTimeout)
				assert.True(t, cfg.Discovery.RateLimit.Enabled)
				assert.Equal(t, 25, cfg.Discovery.RateLimit.RequestsPerSecond)
				assert.Equal(t, 64, cfg.Discovery.RateLimit.BurstSize, "unset keys keep their defaults")
				assert.Equal(t, 250*time.Millisecond, cfg.Scanning.DialTimeout)
				assert.Equal(t, []int{22, 443}, cfg.Scanning.DefaultPorts)
				assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
				assert.Equal(t, logging.FormatJSON, cfg.Logging.Format)
			},
		},
		{
			name: "valid json config",
			path: func(t *testing.T) string {
				return writeConfig(t, "config.json", `{
					"capture": {"preview_limit": 10, "top_n": 3},
					"api": {"port": 9090}
				}`)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10, cfg.Capture.PreviewLimit)
				assert.Equal(t, 3, cfg.Capture.TopN)
				assert.Equal(t, "127.0.0.1:9090", cfg.GetAPIAddress())
			},
		},
		{
			name: "invalid yaml syntax",
			path: func(t *testing.T) string {
				return writeConfig(t, "config.yaml", "discovery:\n  low: [oops\n")
			},
			wantErr: true,
		},
		{
			name: "invalid values",
			path: func(t *testing.T) string {
				return writeConfig(t, "config.yaml", "discovery:\n  low: 30\n  high: 5\n")
			},
			wantErr: true,
		},
		{
			name: "nonexistent file returns defaults",
			path: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.yaml")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "unsupported extension",
			path: func(t *testing.T) string {
				return writeConfig(t, "config.txt", "config data")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.path(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad method", func(c *Config) { c.Discovery.Method = "arp" }},
		{"range above 255", func(c *Config) { c.Discovery.High = 256 }},
		{"negative low", func(c *Config) { c.Discovery.Low = -1 }},
		{"zero ping timeout", func(c *Config) { c.Discovery.PingTimeout = 0 }},
		{"zero discovery concurrency", func(c *Config) { c.Discovery.Concurrency = 0 }},
		{"discovery rate limit without rate", func(c *Config) {
			c.Discovery.RateLimit.Enabled = true
			c.Discovery.RateLimit.RequestsPerSecond = 0
		}},
		{"zero dial timeout", func(c *Config) { c.Scanning.DialTimeout = 0 }},
		{"port out of range", func(c *Config) { c.Scanning.DefaultPorts = []int{0} }},
		{"rate limit without rate", func(c *Config) {
			c.Scanning.RateLimit.Enabled = true
			c.Scanning.RateLimit.RequestsPerSecond = 0
		}},
		{"negative preview", func(c *Config) { c.Capture.PreviewLimit = -1 }},
		{"zero top n", func(c *Config) { c.Capture.TopN = 0 }},
		{"bad api port", func(c *Config) { c.API.Port = 70000 }},
		{"collector without url", func(c *Config) {
			c.Collector.Enabled = true
			c.Collector.URL = ""
		}},
		{"schedule without cron", func(c *Config) {
			c.Schedule = []ScheduleJob{{Kind: "network"}}
		}},
		{"port job without target", func(c *Config) {
			c.Schedule = []ScheduleJob{{Cron: "@hourly", Kind: "ports"}}
		}},
		{"unknown job kind", func(c *Config) {
			c.Schedule = []ScheduleJob{{Cron: "@hourly", Kind: "capture"}}
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("valid schedule", func(t *testing.T) {
		cfg := Default()
		cfg.Schedule = []ScheduleJob{
			{Name: "sweep", Cron: "*/5 * * * *", Kind: "network"},
			{Name: "gateway", Cron: "@hourly", Kind: "ports", Target: "192.168.1.1"},
		}
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidateNamesField(t *testing.T) {
	cfg := Default()
	cfg.API.Port = 70000

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	assert.Equal(t, "API port must be between 1 and 65535", errors.Message(err))
	assert.Contains(t, err.Error(), "field: api.port")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "netscope.yaml")

	cfg := Default()
	cfg.Discovery.High = 254
	cfg.Collector.DeviceID = "lab-sensor"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 254, loaded.Discovery.High)
	assert.Equal(t, "lab-sensor", loaded.Collector.DeviceID)
	assert.Equal(t, cfg.Scanning.DialTimeout, loaded.Scanning.DialTimeout)
}
