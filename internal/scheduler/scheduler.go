// Package scheduler provides cron driven discovery and port scan jobs for
// netscope. Each run produces the same report the CLI prints and hands it to
// a Pusher, usually the collection API client.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/netprobe"
	"github.com/anstrom/netscope/internal/portscan"
	"github.com/anstrom/netscope/internal/report"
)

// Discoverer runs host discovery sweeps.
type Discoverer interface {
	DiscoverHosts(ctx context.Context, base string, low, high int) ([]discovery.HostResult, error)
}

// PortScanner runs TCP connect scans.
type PortScanner interface {
	ScanPorts(ctx context.Context, target string, ports []int) ([]portscan.PortResult, error)
}

// Pusher delivers a finished report.
type Pusher interface {
	Push(ctx context.Context, kind string, report any) error
}

// Scheduler manages scheduled discovery and port scan jobs.
type Scheduler struct {
	cron      *cron.Cron
	discovery Discoverer
	scanner   PortScanner
	pusher    Pusher
	low, high int
	jobs      map[uuid.UUID]*ScheduledJob
	mu        sync.RWMutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logging.Logger
}

// ScheduledJob represents a scheduled job wrapper.
type ScheduledJob struct {
	ID        uuid.UUID
	CronID    cron.EntryID
	Config    config.ScheduleJob
	LastRun   time.Time
	NextRun   time.Time
	Running   bool
	LastError string
}

// NewScheduler creates a new job scheduler. pusher may be nil, in which
// case reports are only logged.
func NewScheduler(d Discoverer, s PortScanner, pusher Pusher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:      cron.New(),
		discovery: d,
		scanner:   s,
		pusher:    pusher,
		low:       1,
		high:      20,
		jobs:      make(map[uuid.UUID]*ScheduledJob),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.Default().WithComponent("scheduler"),
	}
}

// WithRange sets the host range swept by network jobs.
func (s *Scheduler) WithRange(low, high int) *Scheduler {
	s.low, s.high = low, high
	return s
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(l *logging.Logger) *Scheduler {
	if l != nil {
		s.logger = l.WithComponent("scheduler")
	}
	return s
}

// Start begins the scheduler. A stopped scheduler can be started again.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop stops the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// AddJob validates job and registers it with cron.
func (s *Scheduler) AddJob(job config.ScheduleJob) (uuid.UUID, error) {
	schedule, err := cron.ParseStandard(job.Cron)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	switch job.Kind {
	case report.KindNetwork:
		if job.Base != "" {
			if _, err := discovery.ParseSubnetBase(job.Base); err != nil {
				return uuid.Nil, err
			}
		}
	case report.KindPorts:
		if err := portscan.ValidateTarget(job.Target); err != nil {
			return uuid.Nil, err
		}
	default:
		return uuid.Nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}

	id := uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	cronID, err := s.cron.AddFunc(job.Cron, func() { _ = s.execute(id) })
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobs[id] = &ScheduledJob{
		ID:      id,
		CronID:  cronID,
		Config:  job,
		NextRun: schedule.Next(time.Now()),
	}

	s.logger.Info("Added job", "name", job.Name, "kind", job.Kind, "schedule", job.Cron)
	return id, nil
}

// RemoveJob removes a scheduled job.
func (s *Scheduler) RemoveJob(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}

	s.cron.Remove(job.CronID)
	delete(s.jobs, id)
	return nil
}

// GetJobs returns a snapshot of all jobs ordered by name.
func (s *Scheduler) GetJobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		if entry := s.cron.Entry(job.CronID); entry.Valid() && !entry.Next.IsZero() {
			snapshot.NextRun = entry.Next
		}
		jobs = append(jobs, snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Config.Name < jobs[j].Config.Name })
	return jobs
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(id uuid.UUID) error {
	s.mu.RLock()
	_, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	return s.execute(id)
}

func (s *Scheduler) execute(id uuid.UUID) error {
	ctx, job, ok := s.prepareJobExecution(id)
	if !ok {
		return nil
	}

	err, pushErr := s.runJob(ctx, job.Config)
	s.cleanupJobExecution(id, err, pushErr)
	if err != nil {
		s.logger.Error("Scheduled job failed", "name", job.Config.Name, "error", err)
	}
	return err
}

// prepareJobExecution marks the job as running; it reports false when the
// job is gone or still running from a previous tick.
func (s *Scheduler) prepareJobExecution(id uuid.UUID) (context.Context, ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ScheduledJob{}, false
	}
	if job.Running {
		s.logger.Warn("Job is already running, skipping", "name", job.Config.Name)
		return nil, ScheduledJob{}, false
	}

	job.Running = true
	job.LastRun = time.Now()
	return s.ctx, *job, true
}

// cleanupJobExecution records the outcome of a run. A failed push shows up
// in LastError but does not count as a failed run.
func (s *Scheduler) cleanupJobExecution(id uuid.UUID, err, pushErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[id]; ok {
		job.Running = false
		job.LastError = ""
		switch {
		case err != nil:
			job.LastError = err.Error()
		case pushErr != nil:
			job.LastError = "push failed: " + pushErr.Error()
		}
	}
}

// runJob runs the engine for job and pushes the report. err is the engine
// failure; pushErr is set when the report was built but not delivered.
func (s *Scheduler) runJob(ctx context.Context, job config.ScheduleJob) (err, pushErr error) {
	var doc any

	switch job.Kind {
	case report.KindNetwork:
		doc, err = s.runDiscovery(ctx, job)
	case report.KindPorts:
		doc, err = s.runPortScan(ctx, job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if err != nil {
		return err, nil
	}

	if s.pusher == nil {
		s.logger.Info("Scheduled job completed", "name", job.Name, "kind", job.Kind)
		return nil, nil
	}

	// The next tick runs regardless of a failed push.
	if pushErr = s.pusher.Push(ctx, job.Kind, doc); pushErr != nil {
		s.logger.Warn("Failed to push report", "name", job.Name, "error", pushErr)
	}
	return nil, pushErr
}

func (s *Scheduler) runDiscovery(ctx context.Context, job config.ScheduleJob) (any, error) {
	base := job.Base
	if base == "" {
		base = discovery.LocalSubnetBase()
	}

	hosts, err := s.discovery.DiscoverHosts(ctx, base, s.low, s.high)
	if err != nil {
		return nil, err
	}
	return report.Discovery(netprobe.LocalIPv4(), hosts), nil
}

func (s *Scheduler) runPortScan(ctx context.Context, job config.ScheduleJob) (any, error) {
	ports, err := s.scanner.ScanPorts(ctx, job.Target, job.Ports)
	if err != nil {
		return nil, err
	}
	return report.Ports(job.Target, ports), nil
}
