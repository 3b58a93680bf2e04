// Package scheduler runs fixed-interval jobs (the expiry sweep, broadcasts) on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs jobs on constant intervals. A run that overlaps the previous one is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a stopped scheduler. Jobs receive a context derived from ctx.
func New(ctx context.Context) *Scheduler {
	logger := cron.PrintfLogger(log.New(log.Writer(), "scheduler: ", log.LstdFlags))
	jobCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		ctx:    jobCtx,
		cancel: cancel,
	}
}

// Every registers job to run every interval. Intervals are rounded up to whole seconds.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: %s interval must be positive, got %v", name, interval)
	}
	_, err := s.cron.AddFunc("@every "+interval.String(), func() {
		job(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: add %s: %w", name, err)
	}
	log.Printf("scheduler: %s every %v", name, interval)
	return nil
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to return, or for ctx to end.
// Running jobs see their context cancelled once ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Printf("scheduler: stop: %v; cancelling running jobs", ctx.Err())
	}
	s.cancel()
}
