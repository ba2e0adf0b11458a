// Package discovery provides host discovery for netscope. It sweeps a range
// of addresses inside a /24, probes each for liveness on a bounded worker
// pool, reverse resolves the hosts that answer and returns them ordered by
// last octet.
package discovery

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
	// StatusActive is the only status a reported host can have.
	StatusActive = "Active"
	// UnknownHostname is reported when reverse resolution fails.
	UnknownHostname = "Unknown"

	defaultConcurrency = 64
	defaultPingTimeout = time.Second
	defaultDNSTimeout  = time.Second
)

// HostResult is one live host.
type HostResult struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Status   string `json:"status"`
}

// Config represents discovery engine configuration.
type Config struct {
	// Method names the liveness probe, used for metrics and logs.
	Method      string
	DNSTimeout  time.Duration
	Concurrency int
	// RateLimit caps probes started per second (0 = unlimited).
	RateLimit int
	Burst     int
}

// Engine handles host discovery sweeps.
type Engine struct {
	pinger   netprobe.Pinger
	resolver netprobe.Resolver
	config   Config
	recorder metrics.Recorder
	logger   *logging.Logger
}

// NewEngine creates a discovery engine from explicit collaborators.
func NewEngine(pinger netprobe.Pinger, resolver netprobe.Resolver, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.DNSTimeout <= 0 {
		cfg.DNSTimeout = defaultDNSTimeout
	}
	if cfg.Method == "" {
		cfg.Method = netprobe.MethodCommand
	}

	return &Engine{
		pinger:   pinger,
		resolver: resolver,
		config:   cfg,
		recorder: metrics.Nop{},
		logger:   logging.Default().WithComponent("discovery"),
	}
}

// NewEngineFromConfig wires the system pinger and resolver selected by cfg.
func NewEngineFromConfig(cfg config.DiscoveryConfig) (*Engine, error) {
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}

	pinger, err := netprobe.NewPinger(cfg.Method, pingTimeout, cfg.Privileged)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeValidation, "invalid discovery method", err)
	}

	dnsTimeout := cfg.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = defaultDNSTimeout
	}

	c := Config{
		Method:      cfg.Method,
		DNSTimeout:  dnsTimeout,
		Concurrency: cfg.Concurrency,
	}
	if cfg.RateLimit.Enabled {
		c.RateLimit = cfg.RateLimit.RequestsPerSecond
		c.Burst = cfg.RateLimit.BurstSize
	}

	return NewEngine(pinger, netprobe.NewDNSResolver(cfg.DNSServer, dnsTimeout), c), nil
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
		e.logger = l.WithComponent("discovery")
	}
}

// DiscoverHosts probes base.low through base.high and returns the live
// hosts sorted by last octet.
func (e *Engine) DiscoverHosts(ctx context.Context, base string, low, high int) ([]HostResult, error) {
	return e.Stream(ctx, base, low, high, nil)
}

// Stream is DiscoverHosts with a callback that receives each live host as
// soon as its probe completes. onHost runs on a single goroutine.
func (e *Engine) Stream(ctx context.Context, base string, low, high int,
	onHost func(HostResult)) ([]HostResult, error) {
	prefix, err := ParseSubnetBase(base)
	if err != nil {
		return nil, err
	}
	if err := ValidateRange(low, high); err != nil {
		return nil, err
	}

	start := time.Now()
	network := fmt.Sprintf("%s.%d-%d", prefix, low, high)
	e.logger.InfoDiscovery("Starting host discovery", network, "method", e.config.Method)

	octets := make([]int, 0, high-low+1)
	for i := low; i <= high; i++ {
		octets = append(octets, i)
	}

	pool := workers.New(workers.Config{
		Kind:      "ping",
		Size:      e.config.Concurrency,
		RateLimit: e.config.RateLimit,
		Burst:     e.config.Burst,
	}, func(ctx context.Context, octet int) (HostResult, workers.Status, error) {
		return e.probeHost(ctx, fmt.Sprintf("%s.%d", prefix, octet))
	}).WithRecorder(e.recorder).WithLogger(e.logger)

	if onHost != nil {
		pool.OnOutcome(func(o workers.Outcome[int, HostResult]) {
			if o.Status == workers.StatusSuccess {
				onHost(o.Value)
			}
		})
	}

	outcomes, err := pool.Run(ctx, octets)
	if err != nil {
		e.recorder.RecordDiscovery(e.config.Method, "canceled", time.Since(start), 0)
		e.logger.ErrorDiscovery("Host discovery canceled", network, err)
		return nil, errors.ErrCanceled("discover_hosts", err)
	}

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Input < outcomes[j].Input
	})
	hosts := workers.Successes(outcomes)
	if hosts == nil {
		hosts = []HostResult{}
	}

	e.recorder.RecordDiscovery(e.config.Method, "success", time.Since(start), len(hosts))
	e.logger.InfoDiscovery("Host discovery completed", network,
		"probed", len(octets),
		"active", len(hosts),
		"duration", time.Since(start))

	return hosts, nil
}

// probeHost pings ip and, if it answers, resolves its name.
func (e *Engine) probeHost(ctx context.Context, ip string) (HostResult, workers.Status, error) {
	alive, err := e.pinger.Ping(ctx, ip)
	if err != nil {
		return HostResult{}, workers.StatusInconclusive, err
	}
	if !alive {
		return HostResult{}, workers.StatusInconclusive, nil
	}

	return HostResult{
		IP:       ip,
		Hostname: e.lookupHostname(ctx, ip),
		Status:   StatusActive,
	}, workers.StatusSuccess, nil
}

func (e *Engine) lookupHostname(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, e.config.DNSTimeout)
	defer cancel()

	name, err := e.resolver.LookupPTR(ctx, ip)
	if err != nil || name == "" {
		e.logger.Debug("Reverse lookup failed", "ip", ip, "error", err)
		return UnknownHostname
	}
	return name
}

// ParseSubnetBase accepts "a.b.c" or a full dotted quad and returns the
// three-octet prefix.
func ParseSubnetBase(base string) (string, error) {
	parts := strings.Split(strings.TrimSpace(base), ".")
	if len(parts) != 3 && len(parts) != 4 {
		return "", errors.ErrInvalidTarget(base)
	}
	octets := make([]string, 0, 3)
	for _, p := range parts {
		if p == "" || len(p) > 3 || strings.TrimLeft(p, "0123456789") != "" {
			return "", errors.ErrInvalidTarget(base)
		}
		n, _ := strconv.Atoi(p)
		if n > 255 {
			return "", errors.ErrInvalidTarget(base)
		}
		if len(octets) < 3 {
			octets = append(octets, strconv.Itoa(n))
		}
	}
	return strings.Join(octets, "."), nil
}

// ValidateRange checks 0 <= low <= high <= 255.
func ValidateRange(low, high int) error {
	if low < 0 || high > 255 || low > high {
		return errors.ErrValidation(fmt.Sprintf("invalid host range %d-%d", low, high)).
			WithContext("low", low).
			WithContext("high", high)
	}
	return nil
}

// ParseRange parses "low-high" or a single octet.
func ParseRange(spec string) (int, int, error) {
	lowStr, highStr, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found {
		highStr = lowStr
	}
	low, err := strconv.Atoi(strings.TrimSpace(lowStr))
	if err != nil {
		return 0, 0, errors.ErrValidation(fmt.Sprintf("invalid host range %q", spec))
	}
	high, err := strconv.Atoi(strings.TrimSpace(highStr))
	if err != nil {
		return 0, 0, errors.ErrValidation(fmt.Sprintf("invalid host range %q", spec))
	}
	if err := ValidateRange(low, high); err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

// LocalSubnetBase returns the /24 prefix of the machine's outbound address.
func LocalSubnetBase() string {
	ip := net.ParseIP(netprobe.LocalIPv4()).To4()
	if ip == nil {
		return "127.0.0"
	}
	return fmt.Sprintf("%d.%d.%d", ip[0], ip[1], ip[2])
}
