// Package janitor periodically sweeps abandoned ongoing activities.
package janitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/observability"
)

// Cleaner removes stale ongoing activities.
type Cleaner interface {
	CleanupStale(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
}

// Runner calls Cleaner on a fixed interval.
type Runner struct {
	cleaner  Cleaner
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
	now      func() time.Time
	done     chan struct{}
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner constructs a Runner. A non-positive maxAge means domain.DefaultStaleAfter.
func NewRunner(cleaner Cleaner, interval, maxAge time.Duration, opts ...Option) *Runner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = domain.DefaultStaleAfter
	}
	r := &Runner{
		cleaner:  cleaner,
		interval: interval,
		maxAge:   maxAge,
		logger:   zap.NewNop(),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs a pass immediately and then on every tick until ctx ends. It
// should be called in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		close(r.done)
	}()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("stale activity sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start returns.
func (r *Runner) Wait() {
	<-r.done
}

// RunOnce performs one sweep and returns how many activities were removed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	removed, err := r.cleaner.CleanupStale(ctx, now, r.maxAge)
	if err != nil {
		return removed, err
	}

	observability.RecordJanitorRun(now, removed)
	if removed > 0 {
		r.logger.Info("removed stale activities",
			zap.Int("removed", removed),
			zap.Duration("max_age", r.maxAge))
	}
	return removed, nil
}
