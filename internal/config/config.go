package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
)

// Config represents the complete netscope configuration
type Config struct {
	// Host discovery configuration
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Port scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Capture analysis configuration
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Collection API reporting
	Collector CollectorConfig `yaml:"collector" json:"collector"`

	// Scheduled jobs for the watch command
	Schedule []ScheduleJob `yaml:"schedule" json:"schedule"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// DiscoveryConfig holds host discovery settings
type DiscoveryConfig struct {
	// Liveness probe implementation: "command" or "icmp"
	Method string `yaml:"method" json:"method"`

	// Use raw ICMP sockets instead of unprivileged datagram sockets
	Privileged bool `yaml:"privileged" json:"privileged"`

	// Host range within the subnet
	Low  int `yaml:"low" json:"low"`
	High int `yaml:"high" json:"high"`

	// Per-probe liveness timeout
	PingTimeout time.Duration `yaml:"ping_timeout" json:"ping_timeout"`

	// Reverse DNS timeout
	DNSTimeout time.Duration `yaml:"dns_timeout" json:"dns_timeout"`

	// Optional resolver address (host:port); empty uses /etc/resolv.conf
	DNSServer string `yaml:"dns_server" json:"dns_server"`

	// Maximum in-flight probes
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// Rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// ScanningConfig holds port scanning settings
type ScanningConfig struct {
	// TCP connect timeout per port
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// Ports probed when the caller supplies none
	DefaultPorts []int `yaml:"default_ports" json:"default_ports"`

	// Maximum in-flight probes
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// Rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Enable rate limiting
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Probes per second
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`

	// Burst size
	BurstSize int `yaml:"burst_size" json:"burst_size"`
}

// CaptureConfig holds capture analysis settings
type CaptureConfig struct {
	// Number of frames echoed in the report
	PreviewLimit int `yaml:"preview_limit" json:"preview_limit"`

	// Size of the top talker rankings
	TopN int `yaml:"top_n" json:"top_n"`

	// Largest accepted upload through the API, in bytes
	MaxUploadSize int64 `yaml:"max_upload_size" json:"max_upload_size"`

	// Directory for uploaded captures; empty uses the OS temp dir
	UploadDir string `yaml:"upload_dir" json:"upload_dir"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// bcrypt hash of the API key; empty disables authentication
	APIKeyHash string `yaml:"api_key_hash" json:"api_key_hash"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`

	// Per-request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Maximum JSON body size
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// CollectorConfig points netscope at a log collection API
type CollectorConfig struct {
	// Enable pushing reports
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Base URL of the collection API, e.g. http://localhost:5000
	URL string `yaml:"url" json:"url"`

	// Device identifier attached to every record
	DeviceID string `yaml:"device_id" json:"device_id"`

	// HTTP timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ScheduleJob is one cron-driven discovery or port scan
type ScheduleJob struct {
	Name string `yaml:"name" json:"name"`

	// Standard five-field cron expression
	Cron string `yaml:"cron" json:"cron"`

	// "network" or "ports"
	Kind string `yaml:"kind" json:"kind"`

	// Subnet base for network jobs; empty uses the local address
	Base string `yaml:"base" json:"base"`

	// Target for port jobs
	Target string `yaml:"target" json:"target"`

	// Ports for port jobs; empty uses scanning.default_ports
	Ports []int `yaml:"ports" json:"ports"`
}

// DefaultPorts is the port set probed when none is supplied.
var DefaultPorts = []int{
	21, 22, 23, 25, 53, 80, 110, 135, 139, 143,
	443, 445, 993, 995, 1433, 3306, 3389, 5000, 8080, 8443,
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			Method:      "command",
			Low:         1,
			High:        20,
			PingTimeout: 1 * time.Second,
			DNSTimeout:  1 * time.Second,
			Concurrency: 64,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 50,
				BurstSize:         64,
			},
		},
		Scanning: ScanningConfig{
			DialTimeout:  500 * time.Millisecond,
			DefaultPorts: append([]int(nil), DefaultPorts...),
			Concurrency:  64,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Capture: CaptureConfig{
			PreviewLimit:  100,
			TopN:          5,
			MaxUploadSize: 64 << 20,
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1",
			Port:       8080,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
			},
			RequestTimeout:  60 * time.Second,
			MaxRequestSize:  1024 * 1024, // 1MB
			ShutdownTimeout: 10 * time.Second,
		},
		Collector: CollectorConfig{
			Enabled: false,
			URL:     "http://localhost:5000",
			Timeout: 10 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// yaml.v3 parses JSON documents as well
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s config: %w", ext, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension: %q", ext)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateScanning(); err != nil {
		return err
	}

	if c.Capture.PreviewLimit < 0 {
		return errors.NewConfigError("capture.preview_limit", "capture preview limit must not be negative", c.Capture.PreviewLimit)
	}
	if c.Capture.TopN <= 0 {
		return errors.NewConfigError("capture.top_n", "capture top_n must be positive", c.Capture.TopN)
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		return errors.NewConfigError("api.port", "API port must be between 1 and 65535", c.API.Port)
	}

	if c.Collector.Enabled && c.Collector.URL == "" {
		return errors.NewConfigError("collector.url", "collector url is required when the collector is enabled", "")
	}

	for i, job := range c.Schedule {
		if job.Cron == "" {
			return errors.NewConfigError(fmt.Sprintf("schedule[%d].cron", i), fmt.Sprintf("schedule[%d]: cron expression is required", i), "")
		}
		switch job.Kind {
		case "network":
		case "ports":
			if job.Target == "" {
				return errors.NewConfigError(fmt.Sprintf("schedule[%d].target", i), fmt.Sprintf("schedule[%d]: target is required for port jobs", i), "")
			}
		default:
			return errors.NewConfigError(fmt.Sprintf("schedule[%d].kind", i), fmt.Sprintf("schedule[%d]: invalid kind %q", i, job.Kind), job.Kind)
		}
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.NewConfigError("logging.level", fmt.Sprintf("invalid log level: %s", c.Logging.Level), c.Logging.Level)
	}

	if c.Logging.Format != logging.FormatText && c.Logging.Format != logging.FormatJSON {
		return errors.NewConfigError("logging.format", fmt.Sprintf("invalid log format: %s", c.Logging.Format), c.Logging.Format)
	}

	return nil
}

func (c *Config) validateDiscovery() error {
	d := c.Discovery
	if d.Method != "command" && d.Method != "icmp" {
		return errors.NewConfigError("discovery.method", fmt.Sprintf("invalid discovery method: %s", d.Method), d.Method)
	}
	if d.Low < 0 || d.High > 255 || d.Low > d.High {
		return errors.NewConfigError("discovery.low", fmt.Sprintf("discovery range %d-%d is invalid", d.Low, d.High), d.Low)
	}
	if d.PingTimeout <= 0 || d.DNSTimeout <= 0 {
		return errors.NewConfigError("discovery.ping_timeout", "discovery timeouts must be positive", d.PingTimeout)
	}
	if d.Concurrency <= 0 {
		return errors.NewConfigError("discovery.concurrency", "discovery concurrency must be positive", d.Concurrency)
	}
	if d.RateLimit.Enabled && d.RateLimit.RequestsPerSecond <= 0 {
		return errors.NewConfigError("discovery.rate_limit.requests_per_second", "rate limit requests per second must be positive", d.RateLimit.RequestsPerSecond)
	}
	return nil
}

func (c *Config) validateScanning() error {
	s := c.Scanning
	if s.DialTimeout <= 0 {
		return errors.NewConfigError("scanning.dial_timeout", "scanning dial timeout must be positive", s.DialTimeout)
	}
	if s.Concurrency <= 0 {
		return errors.NewConfigError("scanning.concurrency", "scanning concurrency must be positive", s.Concurrency)
	}
	for _, p := range s.DefaultPorts {
		if p < 1 || p > 65535 {
			return errors.NewConfigError("scanning.default_ports", fmt.Sprintf("default port %d out of range", p), p)
		}
	}
	if s.RateLimit.Enabled && s.RateLimit.RequestsPerSecond <= 0 {
		return errors.NewConfigError("scanning.rate_limit.requests_per_second", "rate limit requests per second must be positive", s.RateLimit.RequestsPerSecond)
	}
	return nil
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}
