// Package collector pushes netscope reports to a log collection API as
// "system" log records.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/netprobe"
)

const (
	logsEndpoint   = "/api/logs"
	recordType     = "system"
	recordSeverity = "low"
	defaultTimeout = 10 * time.Second
)

// Version is reported in the user agent and device info.
var Version = "dev"

// DeviceInfo describes the machine that produced a record.
type DeviceInfo struct {
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	IP       string `json:"ip"`
	Version  string `json:"version"`
}

// Payload wraps a report with its kind.
type Payload struct {
	Kind   string `json:"kind"`
	Report any    `json:"report"`
}

// Record is one log record accepted by the collection API.
type Record struct {
	Type       string     `json:"type"`
	DeviceID   string     `json:"deviceId"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
	Severity   string     `json:"severity"`
	Data       Payload    `json:"data"`
	Tags       []string   `json:"tags"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("collector error (status %d): %s", e.StatusCode, e.Message)
}

// Client posts records to the collection API.
type Client struct {
	baseURL    string
	deviceID   string
	device     DeviceInfo
	httpClient *http.Client
	userAgent  string
	logger     *logging.Logger
}

// New creates a client from the collector config section.
func New(cfg config.CollectorConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	hostname, _ := os.Hostname()
	device := DeviceInfo{
		Hostname: hostname,
		Platform: runtime.GOOS,
		IP:       netprobe.LocalIPv4(),
		Version:  Version,
	}

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = hostname
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		deviceID: deviceID,
		device:   device,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    4,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		userAgent: "netscope/" + Version,
		logger:    logging.Default().WithComponent("collector"),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *logging.Logger) *Client {
	if l != nil {
		c.logger = l.WithComponent("collector")
	}
	return c
}

// Record builds the log record for a report.
func (c *Client) Record(kind string, report any) Record {
	return Record{
		Type:       recordType,
		DeviceID:   c.deviceID,
		DeviceInfo: c.device,
		Severity:   recordSeverity,
		Data:       Payload{Kind: kind, Report: report},
		Tags:       []string{"netscope", kind},
	}
}

// Push sends report to the collection API.
func (c *Client) Push(ctx context.Context, kind string, report any) error {
	body, err := json.Marshal(c.Record(kind, report))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+logsEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body, resp.StatusCode)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("Report pushed", "kind", kind, "status", resp.StatusCode)
	return nil
}

func readErrorMessage(r io.Reader, status int) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("HTTP %d error", status)
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
