// Package workers provides the bounded worker pool used to fan probes out
// across a fixed number of goroutines. Every dispatched input yields exactly
// one Outcome on a results channel; the pool joins all workers before Run
// returns, so callers never share mutable state with in-flight probes.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/metrics"
)

// Status is the tri-state result of a single probe.
type Status int

const (
	// StatusSuccess means the probe positively confirmed its target.
	StatusSuccess Status = iota
	// StatusClosed means the target answered negatively (e.g. connection refused).
	StatusClosed
	// StatusInconclusive covers timeouts and unclassified failures.
	StatusInconclusive
)

// String returns the metric label for the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusClosed:
		return "closed"
	case StatusInconclusive:
		return "inconclusive"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is what one probe produced for one input.
type Outcome[T, R any] struct {
	Input    T
	Status   Status
	Value    R
	Err      error
	Duration time.Duration
}

// ProbeFunc executes a single bounded-time probe.
type ProbeFunc[T, R any] func(ctx context.Context, input T) (R, Status, error)

// Config holds configuration for the worker pool.
type Config struct {
	// Kind labels log lines and metrics, e.g. "tcp" or "ping".
	Kind string
	// Size is the number of worker goroutines.
	Size int
	// RateLimit is the maximum number of probes started per second (0 = no limit).
	RateLimit int
	// Burst is the limiter burst size; defaults to Size when zero.
	Burst int
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Kind: "probe",
		Size: 64,
	}
}

// Pool runs a probe over a batch of inputs with bounded concurrency.
type Pool[T, R any] struct {
	config   Config
	probe    ProbeFunc[T, R]
	limiter  *rate.Limiter
	recorder metrics.Recorder
	logger   *logging.Logger
	observer func(Outcome[T, R])
}

// New creates a new pool for the given probe.
func New[T, R any](config Config, probe ProbeFunc[T, R]) *Pool[T, R] {
	if config.Size <= 0 {
		config.Size = DefaultConfig().Size
	}
	if config.Kind == "" {
		config.Kind = DefaultConfig().Kind
	}

	p := &Pool[T, R]{
		config:   config,
		probe:    probe,
		recorder: metrics.Nop{},
		logger:   logging.Default().WithComponent("workers"),
	}

	if config.RateLimit > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = config.Size
		}
		p.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return p
}

// WithRecorder sets the metrics sink.
func (p *Pool[T, R]) WithRecorder(r metrics.Recorder) *Pool[T, R] {
	if r != nil {
		p.recorder = r
	}
	return p
}

// WithLogger sets the logger.
func (p *Pool[T, R]) WithLogger(l *logging.Logger) *Pool[T, R] {
	if l != nil {
		p.logger = l
	}
	return p
}

// OnOutcome registers a callback invoked from the collecting goroutine as
// each outcome arrives, in completion order.
func (p *Pool[T, R]) OnOutcome(fn func(Outcome[T, R])) *Pool[T, R] {
	p.observer = fn
	return p
}

// Run dispatches one probe per input and returns every outcome once all
// workers have finished. Outcomes are in completion order; callers impose
// their own ordering. If ctx is canceled, queued inputs are dropped, the
// outcomes collected so far are returned, and the context error is
// returned alongside them.
func (p *Pool[T, R]) Run(ctx context.Context, inputs []T) ([]Outcome[T, R], error) {
	if len(inputs) == 0 {
		return nil, ctx.Err()
	}

	workers := p.config.Size
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan T, len(inputs))
	for _, in := range inputs {
		jobs <- in
	}
	close(jobs)

	// Buffered to len(inputs) so workers never block on a slow consumer.
	results := make(chan Outcome[T, R], len(inputs))

	p.logger.Debug("Starting probe batch",
		"kind", p.config.Kind,
		"inputs", len(inputs),
		"workers", workers,
		"rate_limit", p.config.RateLimit)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, jobs, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome[T, R], 0, len(inputs))
	counts := make(map[Status]int, 3)
	for o := range results {
		counts[o.Status]++
		outcomes = append(outcomes, o)
		if p.observer != nil {
			p.observer(o)
		}
	}

	p.logger.Debug("Probe batch finished",
		"kind", p.config.Kind,
		"dispatched", len(outcomes),
		"success", counts[StatusSuccess],
		"closed", counts[StatusClosed],
		"inconclusive", counts[StatusInconclusive])

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	if len(outcomes) != len(inputs) {
		return outcomes, fmt.Errorf("%s batch: %d of %d inputs were not dispatched",
			p.config.Kind, len(inputs)-len(outcomes), len(inputs))
	}
	return outcomes, nil
}

func (p *Pool[T, R]) work(ctx context.Context, jobs <-chan T, results chan<- Outcome[T, R]) {
	for in := range jobs {
		if ctx.Err() != nil {
			// Drain without probing so the queue empties promptly.
			continue
		}
		if err := p.awaitToken(ctx); err != nil {
			continue
		}
		results <- p.execute(ctx, in)
	}
}

// awaitToken blocks until the limiter admits one more probe. Unlike
// rate.Limiter.Wait it does not fail early when the token lies beyond the
// context deadline, so an input is only skipped once ctx is actually done
// and Run reports that error.
func (p *Pool[T, R]) awaitToken(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}

	r := p.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (p *Pool[T, R]) execute(ctx context.Context, in T) Outcome[T, R] {
	p.recorder.AddActiveProbes(p.config.Kind, 1)
	defer p.recorder.AddActiveProbes(p.config.Kind, -1)

	start := time.Now()
	value, status, err := p.probe(ctx, in)
	duration := time.Since(start)

	p.recorder.RecordProbe(p.config.Kind, status.String(), duration)

	return Outcome[T, R]{
		Input:    in,
		Status:   status,
		Value:    value,
		Err:      err,
		Duration: duration,
	}
}

// Successes filters outcomes down to the values of successful probes.
func Successes[T, R any](outcomes []Outcome[T, R]) []R {
	var out []R
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			out = append(out, o.Value)
		}
	}
	return out
}
