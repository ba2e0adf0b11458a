// Package metrics provides Prometheus-based metrics collection for netscope.
// Engines, the probe pool and the API server report through the Recorder
// interface; PrometheusMetrics is the production implementation.
package metrics

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all netscope metrics
	namespace = "netscope"

	// Subsystems
	subsystemProbe     = "probe"
	subsystemScan      = "scan"
	subsystemDiscovery = "discovery"
	subsystemCapture   = "capture"
	subsystemSystem    = "system"
	subsystemAPI       = "api"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	activeProbes  *prometheus.GaugeVec

	// Port scan metrics
	scansTotal   *prometheus.CounterVec
	scanDuration prometheus.Histogram
	portsFound   prometheus.Counter

	// Discovery metrics
	discoveryTotal    *prometheus.CounterVec
	discoveryDuration *prometheus.HistogramVec
	hostsDiscovered   *prometheus.CounterVec

	// Capture metrics
	capturesTotal   *prometheus.CounterVec
	captureDuration prometheus.Histogram
	captureFrames   *prometheus.CounterVec

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// System metrics
	goroutines prometheus.Gauge
	uptime     prometheus.Gauge

	startTime time.Time
	mu        sync.Mutex
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initProbeMetrics()
	pm.initScanMetrics()
	pm.initDiscoveryMetrics()
	pm.initCaptureMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Total number of probes by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of individual probes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"kind"},
	)

	pm.activeProbes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "active",
			Help:      "Number of probes currently in flight",
		},
		[]string{"kind"},
	)
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of port scans by status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of port scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
	)

	pm.portsFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "open_ports_total",
			Help:      "Total number of open ports reported",
		},
	)
}

func (pm *PrometheusMetrics) initDiscoveryMetrics() {
	pm.discoveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "total",
			Help:      "Total number of discovery sweeps by method and status",
		},
		[]string{"method", "status"},
	)

	pm.discoveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "duration_seconds",
			Help:      "Duration of discovery sweeps in seconds",
			Buckets:   []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"method"},
	)

	pm.hostsDiscovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "hosts_total",
			Help:      "Total number of live hosts discovered",
		},
		[]string{"method"},
	)
}

func (pm *PrometheusMetrics) initCaptureMetrics() {
	pm.capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemCapture,
			Name:      "analyses_total",
			Help:      "Total number of capture analyses by status",
		},
		[]string{"status"},
	)

	pm.captureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemCapture,
			Name:      "duration_seconds",
			Help:      "Duration of capture analyses in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pm.captureFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemCapture,
			Name:      "frames_total",
			Help:      "Total number of IPv4 frames analysed by protocol",
		},
		[]string{"protocol"},
	)
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 30.0},
		},
		[]string{"method", "path"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.probesTotal,
		pm.probeDuration,
		pm.activeProbes,
		pm.scansTotal,
		pm.scanDuration,
		pm.portsFound,
		pm.discoveryTotal,
		pm.discoveryDuration,
		pm.hostsDiscovered,
		pm.capturesTotal,
		pm.captureDuration,
		pm.captureFrames,
		pm.httpRequests,
		pm.httpDuration,
		pm.goroutines,
		pm.uptime,
	)
}

// Handler serves the registry in the Prometheus exposition format,
// refreshing the system gauges on every scrape.
func (pm *PrometheusMetrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pm.refreshSystemMetrics()
		inner.ServeHTTP(w, r)
	})
}

// Probe Metrics Methods

// RecordProbe counts one probe outcome and its duration
func (pm *PrometheusMetrics) RecordProbe(kind, outcome string, duration time.Duration) {
	pm.probesTotal.WithLabelValues(kind, outcome).Inc()
	pm.probeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddActiveProbes adjusts the in-flight probe gauge
func (pm *PrometheusMetrics) AddActiveProbes(kind string, delta int) {
	pm.activeProbes.WithLabelValues(kind).Add(float64(delta))
}

// Scan Metrics Methods

// RecordScan records a completed port scan
func (pm *PrometheusMetrics) RecordScan(status string, duration time.Duration, openPorts int) {
	pm.scansTotal.WithLabelValues(status).Inc()
	pm.scanDuration.Observe(duration.Seconds())
	pm.portsFound.Add(float64(openPorts))
}

// Discovery Metrics Methods

// RecordDiscovery records a completed discovery sweep
func (pm *PrometheusMetrics) RecordDiscovery(method, status string, duration time.Duration, hosts int) {
	pm.discoveryTotal.WithLabelValues(method, status).Inc()
	pm.discoveryDuration.WithLabelValues(method).Observe(duration.Seconds())
	pm.hostsDiscovered.WithLabelValues(method).Add(float64(hosts))
}

// Capture Metrics Methods

// RecordCapture records a completed capture analysis
func (pm *PrometheusMetrics) RecordCapture(status string, duration time.Duration, protocols map[string]int) {
	pm.capturesTotal.WithLabelValues(status).Inc()
	pm.captureDuration.Observe(duration.Seconds())
	for proto, n := range protocols {
		pm.captureFrames.WithLabelValues(proto).Add(float64(n))
	}
}

// API Metrics Methods

// RecordHTTPRequest records one served HTTP request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) refreshSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
