package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/netscope/internal/collector"
	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/scheduler"
)

var (
	watchCollector string
	watchOnce      bool
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the scheduled jobs from the config file",
	Long: `Run every job in the schedule section of the config file on its cron
expression. Each finished report is pushed to the log collection API when
the collector is enabled. With --once every job runs a single time and the
command exits.`,
	Example: `  netscope watch --config netscope.yaml
  netscope watch --collector http://localhost:5000
  netscope watch --once -o table`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchCollector, "collector", "", "collection API base URL; enables pushing reports")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run every job immediately and exit")

	bindConfigFlag(watchCmd, "collector", "collector.url")
}

// jobStatus is the state of one scheduled job at exit.
type jobStatus struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Cron      string     `json:"cron"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// watchReport is printed when watch returns.
type watchReport struct {
	Success bool        `json:"success"`
	Jobs    []jobStatus `json:"jobs"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Schedule) == 0 {
		return errors.ErrValidation("No scheduled jobs configured")
	}

	sched, err := buildScheduler(cfg)
	if err != nil {
		return err
	}

	if watchOnce {
		return runJobsOnce(cmd, sched)
	}

	if err := sched.Start(); err != nil {
		return err
	}
	<-cmd.Context().Done()
	sched.Stop()

	return writeOutput(cmd, newWatchReport(sched.GetJobs()))
}

// buildScheduler registers every configured job. A bad job aborts startup.
func buildScheduler(cfg *config.Config) (*scheduler.Scheduler, error) {
	disc, err := newDiscoverer(cfg.Discovery)
	if err != nil {
		return nil, err
	}

	var pusher scheduler.Pusher
	if cfg.Collector.Enabled {
		pusher = collector.New(cfg.Collector)
		logging.Info("Pushing reports to collector", "url", cfg.Collector.URL)
	}

	sched := scheduler.NewScheduler(disc, newPortScanner(cfg.Scanning), pusher).
		WithRange(cfg.Discovery.Low, cfg.Discovery.High).
		WithLogger(logging.Default())

	for _, job := range cfg.Schedule {
		if _, err := sched.AddJob(job); err != nil {
			return nil, errors.ErrValidation(fmt.Sprintf("job %q: %s", job.Name, errors.Message(err)))
		}
	}
	return sched, nil
}

func runJobsOnce(cmd *cobra.Command, sched *scheduler.Scheduler) error {
	jobs := sched.GetJobs()

	var failed int
	var firstErr string
	for _, job := range jobs {
		if err := cmd.Context().Err(); err != nil {
			return errors.ErrCanceled("watch", err)
		}
		if err := sched.RunNow(job.ID); err != nil {
			failed++
			if firstErr == "" {
				firstErr = fmt.Sprintf("job %q: %s", job.Config.Name, errors.Message(err))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed; %s", failed, len(jobs), firstErr)
	}
	return writeOutput(cmd, newWatchReport(sched.GetJobs()))
}

func newWatchReport(jobs []scheduler.ScheduledJob) watchReport {
	r := watchReport{Success: true, Jobs: make([]jobStatus, 0, len(jobs))}
	for _, job := range jobs {
		status := jobStatus{
			Name:      job.Config.Name,
			Kind:      job.Config.Kind,
			Cron:      job.Config.Cron,
			LastError: job.LastError,
		}
		if !job.LastRun.IsZero() {
			lastRun := job.LastRun
			status.LastRun = &lastRun
		}
		if job.LastError != "" {
			r.Success = false
		}
		r.Jobs = append(r.Jobs, status)
	}
	return r
}
