package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per iteration with the iteration start time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler runs a tick, then sleeps Interval after it completes. Iterations are
// not aligned to the wall clock, so the cadence drifts by the tick duration.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Run blocks until ctx is cancelled. The first tick runs immediately after the
// startup delay. A tick in flight when ctx is cancelled runs to completion.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for iteration := uint64(1); ; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		at := s.now()
		started := time.Now()
		if err := s.safeTick(context.WithoutCancel(ctx), tick, at); err != nil {
			s.logger.Error().Err(err).Uint64("iteration", iteration).Msg("tick execution failed")
		}
		s.logger.Debug().
			Uint64("iteration", iteration).
			Dur("elapsed", time.Since(started)).
			Dur("next_in", s.opts.Interval).
			Msg("tick complete")

		if err := sleep(ctx, s.opts.Interval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context, tick TickFunc, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("tick panicked")
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return tick(ctx, at)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
