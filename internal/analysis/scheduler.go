package analysis

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Runner is what the scheduler drives; satisfied by *Service.
type Runner interface {
	Run(ctx context.Context) (*RunSummary, bool, error)
}

// Scheduler triggers an analysis run on a fixed interval. It owns no business
// logic: overlap protection lives in the runner's single-flight guard, so a
// tick that fires mid-run just joins the in-flight result.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	// ticks overrides the interval ticker in tests.
	ticks <-chan time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger attaches a logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithTicks injects the tick channel, replacing the interval ticker.
func WithTicks(ticks <-chan time.Time) SchedulerOption {
	return func(s *Scheduler) { s.ticks = ticks }
}

// NewScheduler constructs a scheduler.
func NewScheduler(runner Runner, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{runner: runner, interval: interval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start blocks, running the pipeline on every tick until the context is
// cancelled. Run errors are logged and swallowed; the next tick retries.
func (s *Scheduler) Start(ctx context.Context) error {
	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
			summary, coalesced, err := s.runner.Run(ctx)
			switch {
			case errors.Is(err, context.Canceled):
				return err
			case err != nil:
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "scheduled run failed", "error", err)
				}
			case coalesced:
				if s.logger != nil {
					s.logger.DebugContext(ctx, "tick joined in-flight run")
				}
			default:
				if s.logger != nil && summary != nil {
					s.logger.DebugContext(ctx, "scheduled run finished", "run_id", summary.RunID)
				}
			}
		}
	}
}
