package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is one unit of work. A returned error selects the backoff delay.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	Backoff      time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the worker loop with a fixed cadence and a fixed failure backoff.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Backoff <= 0 {
		opts.Backoff = opts.Interval
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run invokes tick until ctx is cancelled. The first tick runs after StartupDelay;
// each following one waits Interval after a success and Backoff after a failure.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := sleep(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := s.opts.Interval
		if err := tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			delay = s.opts.Backoff
			s.logger.Error().Err(err).Int("consecutive_failures", failures).
				Dur("backoff", delay).Msg("tick execution failed")
		} else if failures > 0 {
			s.logger.Info().Int("after_failures", failures).Msg("tick recovered")
			failures = 0
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
