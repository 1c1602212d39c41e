package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/blogsmith/blogsmith/internal/errors"
)

// Scheduler runs deferred rebuilds: one-shot jobs when future-dated posts
// reach their publish time, and an optional fixed-interval rebuild.
type Scheduler struct {
	s gocron.Scheduler
}

// NewScheduler creates a stopped scheduler. Call Start once jobs are added.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryServer, errors.SeverityFatal, "creating scheduler")
	}
	return &Scheduler{s: s}, nil
}

// ScheduleAt registers a one-shot job at t. Times already past are skipped.
func (s *Scheduler) ScheduleAt(t time.Time, name string, fn func()) error {
	if !t.After(time.Now()) {
		return nil
	}
	_, err := s.s.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(t)),
		gocron.NewTask(fn),
		gocron.WithName(name),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryServer, errors.SeverityError, "scheduling one-shot job").
			WithContext("job", name).
			WithContext("at", t.Format(time.RFC3339))
	}
	slog.Debug("Scheduled one-shot rebuild", "job", name, "at", t.Format(time.RFC3339))
	return nil
}

// ScheduleEvery registers a recurring job with the given interval.
func (s *Scheduler) ScheduleEvery(interval time.Duration, name string, fn func()) error {
	_, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryServer, errors.SeverityError, "scheduling recurring job").
			WithContext("job", name).
			WithContext("interval", interval.String())
	}
	slog.Debug("Scheduled recurring rebuild", "job", name, "interval", interval)
	return nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.s.Start()
}

// Stop shuts the scheduler down, waiting for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.s.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
