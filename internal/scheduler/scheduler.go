// Package scheduler manages timed jobs on top of gocron: fixed-time daily
// jobs and fixed-interval jobs, with per-job non-overlapping execution.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// JobFunc is the signature for all scheduled job bodies. A returned error is
// logged; the job's next scheduled firing is the retry path.
type JobFunc func(ctx context.Context) error

// Scheduler owns the job set. Every trigger is evaluated in the configured
// location, and each job runs in singleton mode: a trigger firing while the
// previous run is still live is skipped, not queued.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler evaluating triggers in loc.
func NewScheduler(logger *slog.Logger, loc *time.Location) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithLogger(newGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{scheduler: s, logger: log}, nil
}

// AddDailyJob schedules fn once per day at the given wall-clock time in the
// scheduler's location.
func (s *Scheduler) AddDailyJob(name string, hour, minute int, fn JobFunc) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid daily time %02d:%02d for job %q", hour, minute, name)
	}
	return s.addJob(name, gocron.CronJob(fmt.Sprintf("%d %d * * *", minute, hour), false), fn)
}

// AddIntervalJob schedules fn every elapsed interval.
func (s *Scheduler) AddIntervalJob(name string, every time.Duration, fn JobFunc) error {
	if every <= 0 {
		return fmt.Errorf("invalid interval %v for job %q", every, name)
	}
	return s.addJob(name, gocron.DurationJob(every), fn)
}

func (s *Scheduler) addJob(name string, definition gocron.JobDefinition, fn JobFunc) error {
	_, err := s.scheduler.NewJob(
		definition,
		gocron.NewTask(s.wrap(name, fn), context.Background()),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	s.logger.Info("Scheduled job", "job_name", name)
	return nil
}

// wrap adds logging and failure isolation around a job body. A failing job
// leaves its state idle again and never crashes the scheduler.
func (s *Scheduler) wrap(name string, fn JobFunc) func(ctx context.Context) {
	return func(ctx context.Context) {
		s.logger.Debug("Running scheduled job", "job_name", name)
		startTime := time.Now()

		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Scheduled job panicked", "job_name", name, "panic", r)
			}
		}()

		if err := fn(ctx); err != nil {
			s.logger.Error("Scheduled job failed", "job_name", name, "error", err,
				"duration", time.Since(startTime))
			return
		}

		s.logger.Debug("Finished scheduled job", "job_name", name,
			"duration", time.Since(startTime))
	}
}

// Start begins trigger evaluation.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "jobs", len(s.scheduler.Jobs()))
}

// Stop shuts the scheduler down, waiting for in-flight jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}
