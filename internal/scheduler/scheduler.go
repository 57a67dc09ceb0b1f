// Package scheduler runs PromptForge's periodic maintenance jobs.
//
// Jobs are registered with standard 5-field cron expressions and stopped with the
// context passed to Run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionSchedule runs the idle conversation sweep hourly.
const DefaultRetentionSchedule = "@hourly"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a scheduler. Jobs start running once Run is called.
func NewScheduler() *Scheduler {
	// Standard 5-field parser (min, hour, dom, month, dow) plus descriptors like @hourly.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	if _, err := s.cron.AddFunc(expr, task); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	slog.Info("Scheduler started", "jobs", s.Len())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
	return ctx.Err()
}

// Purger deletes conversations idle since a cutoff.
type Purger interface {
	PurgeIdle(cutoff time.Time) (int, error)
}

// RetentionJob returns a job that purges conversations idle for longer than retention.
func RetentionJob(p Purger, retention time.Duration, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		cutoff := now().Add(-retention)
		n, err := p.PurgeIdle(cutoff)
		if err != nil {
			slog.Error("RetentionJob: purge failed", "error", err, "purged", n)
			return
		}
		slog.Debug("RetentionJob: sweep finished", "purged", n, "cutoff", cutoff)
	}
}
