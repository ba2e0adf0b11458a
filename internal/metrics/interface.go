package metrics

import "time"

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/anstrom/netscope/internal/metrics Recorder

// Recorder is the metrics surface used by the engines, the probe pool and
// the API server. It allows for easy mocking in tests.
type Recorder interface {
	// RecordProbe counts one probe outcome for the given probe kind.
	RecordProbe(kind, outcome string, duration time.Duration)

	// AddActiveProbes adjusts the number of in-flight probes.
	AddActiveProbes(kind string, delta int)

	// RecordScan records a finished port scan.
	RecordScan(status string, duration time.Duration, openPorts int)

	// RecordDiscovery records a finished host discovery sweep.
	RecordDiscovery(method, status string, duration time.Duration, hosts int)

	// RecordCapture records a finished capture analysis.
	RecordCapture(status string, duration time.Duration, protocols map[string]int)

	// RecordHTTPRequest records one served API request.
	RecordHTTPRequest(method, path, status string, duration time.Duration)
}

// Ensure that PrometheusMetrics implements Recorder.
var _ Recorder = (*PrometheusMetrics)(nil)

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordProbe(string, string, time.Duration) {}
func (Nop) AddActiveProbes(string, int) {}
func (Nop) RecordScan(string, time.Duration, int) {}
func (Nop) RecordDiscovery(string, string, time.Duration, int) {}
func (Nop) RecordCapture(string, time.Duration, map[string]int) {}
func (Nop) RecordHTTPRequest(string, string, string, time.Duration) {}
