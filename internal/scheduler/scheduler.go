// Package scheduler provides cron-based maintenance jobs for WapiDaktari.
//
// The service uses it to purge old USSD turns from the turn log.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPurgeSchedule runs the turn log purge daily at 03:00.
const DefaultPurgeSchedule = "0 3 * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// Option configures a Scheduler.
type Option func(*[]cron.Option)

// WithLocation evaluates cron expressions in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(o *[]cron.Option) { *o = append(*o, cron.WithLocation(loc)) }
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	// Standard 5-field parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronOpts := []cron.Option{cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))}
	for _, opt := range opts {
		opt(&cronOpts)
	}
	c := cron.New(cronOpts...)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Len reports the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// TurnPurger deletes turns older than a cutoff.
type TurnPurger interface {
	PurgeTurnsBefore(cutoff time.Time) (int64, error)
}

// PurgeJob returns a task that deletes turns older than retention.
func PurgeJob(p TurnPurger, retention time.Duration, now func() time.Time) func() {
	return func() {
		cutoff := now().Add(-retention)
		n, err := p.PurgeTurnsBefore(cutoff)
		if err != nil {
			slog.Error("Scheduler.PurgeJob: purge failed", "error", err, "cutoff", cutoff)
			return
		}
		slog.Info("Scheduler.PurgeJob: purged old turns", "removed", n, "cutoff", cutoff)
	}
}

// SchedulePurge registers the turn log purge. A non-positive retention disables it.
func (s *Scheduler) SchedulePurge(expr string, p TurnPurger, retention time.Duration) error {
	if retention <= 0 {
		slog.Info("Scheduler.SchedulePurge: retention disabled")
		return nil
	}
	if expr == "" {
		expr = DefaultPurgeSchedule
	}
	if err := s.AddJob(expr, PurgeJob(p, retention, time.Now)); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", expr, err)
	}
	slog.Info("Scheduler.SchedulePurge: purge scheduled", "schedule", expr, "retention", retention)
	return nil
}
