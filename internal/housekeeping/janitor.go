// Package housekeeping prunes old captured-page records on a schedule.
package housekeeping

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes captured-page records at or before a cutoff.
type Pruner interface {
	PrunePages(ctx context.Context, before time.Time) (int64, error)
}

// Janitor removes records older than its retention period.
type Janitor struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(j *Janitor) { j.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// NewJanitor creates a janitor that keeps records newer than retention and
// runs every interval.
func NewJanitor(pruner Pruner, retention, interval time.Duration, opts ...Option) *Janitor {
	j := &Janitor{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunOnce prunes once and returns how many records were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.pruner.PrunePages(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune captured pages: %w", err)
	}
	j.logger.Info("captured pages pruned", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// Run prunes immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Warn("housekeeping failed", zap.Error(err))
	}
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Warn("housekeeping failed", zap.Error(err))
			}
		}
	}
}
