// Package portscan implements TCP connect scanning of a single target.
// Each candidate port is probed once on a bounded worker pool and the open
// ports are returned in ascending order with their service names.
package portscan

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/metrics"
	"github.com/anstrom/netscope/internal/netprobe"
	"github.com/anstrom/netscope/internal/workers"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 64

	minPort = 1
	maxPort = 65535
)

// PortResult is one open port.
type PortResult struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
}

// Config represents port scan engine configuration.
type Config struct {
	Timeout      time.Duration
	Concurrency  int
	RateLimit    int
	Burst        int
	DefaultPorts []int
}

// Engine runs TCP connect scans.
type Engine struct {
	dialer   netprobe.Dialer
	config   Config
	services func(int) string
	recorder metrics.Recorder
	logger   *logging.Logger
}

// NewEngine creates a port scan engine around dialer.
func NewEngine(dialer netprobe.Dialer, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if len(cfg.DefaultPorts) == 0 {
		cfg.DefaultPorts = config.DefaultPorts
	}

	return &Engine{
		dialer:   dialer,
		config:   cfg,
		services: netprobe.ServiceName,
		recorder: metrics.Nop{},
		logger:   logging.Default().WithComponent("portscan"),
	}
}

// NewEngineFromConfig builds an engine that dials with the system stack.
func NewEngineFromConfig(cfg config.ScanningConfig) *Engine {
	c := Config{
		Timeout:      cfg.DialTimeout,
		Concurrency:  cfg.Concurrency,
		DefaultPorts: cfg.DefaultPorts,
	}
	if cfg.RateLimit.Enabled {
		c.RateLimit = cfg.RateLimit.RequestsPerSecond
		c.Burst = cfg.RateLimit.BurstSize
	}
	return NewEngine(&net.Dialer{}, c)
}

// SetRecorder sets the metrics sink.
func (e *Engine) SetRecorder(r metrics.Recorder) {
	if r != nil {
		e.recorder = r
	}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(l *logging.Logger) {
	if l != nil {
		e.logger = l.WithComponent("portscan")
	}
}

// DefaultPorts returns the ports scanned when the caller supplies none.
func (e *Engine) DefaultPorts() []int {
	return append([]int(nil), e.config.DefaultPorts...)
}

// ScanPorts probes each port on target and returns the open ones sorted
// ascending. An empty port list scans the default set.
func (e *Engine) ScanPorts(ctx context.Context, target string, ports []int) ([]PortResult, error) {
	return e.Stream(ctx, target, ports, nil)
}

// Stream is ScanPorts with a callback receiving each open port as soon as
// it is confirmed. onPort runs on a single goroutine.
func (e *Engine) Stream(ctx context.Context, target string, ports []int,
	onPort func(PortResult)) ([]PortResult, error) {
	if err := ValidateTarget(target); err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		ports = e.config.DefaultPorts
	}
	ports, err := NormalizePorts(ports)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.logger.InfoScan("Starting port scan", target, "ports", len(ports))

	pool := workers.New(workers.Config{
		Kind:      "tcp",
		Size:      e.config.Concurrency,
		RateLimit: e.config.RateLimit,
		Burst:     e.config.Burst,
	}, func(ctx context.Context, port int) (PortResult, workers.Status, error) {
		return e.probePort(ctx, target, port)
	}).WithRecorder(e.recorder).WithLogger(e.logger)

	if onPort != nil {
		pool.OnOutcome(func(o workers.Outcome[int, PortResult]) {
			if o.Status == workers.StatusSuccess {
				onPort(o.Value)
			}
		})
	}

	outcomes, err := pool.Run(ctx, ports)
	if err != nil {
		e.recorder.RecordScan("canceled", time.Since(start), 0)
		e.logger.ErrorScan("Port scan canceled", target, err)
		return nil, errors.ErrCanceled("scan_ports", err)
	}

	open := workers.Successes(outcomes)
	if open == nil {
		open = []PortResult{}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Port < open[j].Port })

	e.recorder.RecordScan("success", time.Since(start), len(open))
	e.logger.InfoScan("Port scan completed", target,
		"probed", len(ports),
		"open", len(open),
		"duration", time.Since(start))

	return open, nil
}

func (e *Engine) probePort(ctx context.Context, target string, port int) (PortResult, workers.Status, error) {
	state, err := netprobe.ConnectTCP(ctx, e.dialer, target, port, e.config.Timeout)
	switch state {
	case netprobe.PortOpen:
		return PortResult{Port: port, Service: e.services(port)}, workers.StatusSuccess, nil
	case netprobe.PortClosed:
		return PortResult{}, workers.StatusClosed, err
	default:
		return PortResult{}, workers.StatusInconclusive, err
	}
}

// ValidateTarget accepts dotted-quad IPv4 addresses only.
func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return errors.ErrValidation("Target IP is required")
	}
	ip := net.ParseIP(target)
	if ip == nil || ip.To4() == nil || strings.Contains(target, ":") {
		return errors.ErrInvalidTarget(target)
	}
	return nil
}

// NormalizePorts validates ports and drops duplicates, keeping first-seen order.
func NormalizePorts(ports []int) ([]int, error) {
	seen := make(map[int]bool, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p < minPort || p > maxPort {
			return nil, errors.ErrValidation(fmt.Sprintf("port %d out of range", p)).
				WithContext("port", p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// ParsePorts parses a specification such as "22,80,8000-8010".
func ParsePorts(spec string) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, errors.ErrValidation("empty port specification")
	}

	var ports []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, isRange := strings.Cut(part, "-"); isRange {
			start, err := parsePort(lo)
			if err != nil {
				return nil, err
			}
			end, err := parsePort(hi)
			if err != nil {
				return nil, err
			}
			if start > end {
				return nil, errors.ErrValidation(fmt.Sprintf("start port cannot be greater than end port: %s", part))
			}
			for p := start; p <= end; p++ {
				ports = append(ports, p)
			}
			continue
		}

		p, err := parsePort(part)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}

	return NormalizePorts(ports)
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < minPort || p > maxPort {
		return 0, errors.ErrValidation(fmt.Sprintf("invalid port: %q", s))
	}
	return p, nil
}
