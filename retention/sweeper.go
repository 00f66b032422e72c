// Package retention removes finished job records once they age out of
// the retention window. Pending and running records are never touched.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobmill/jobmill/hook"
	"github.com/jobmill/jobmill/job"
)

// Sweeper deletes terminal records whose CompletedAt has fallen behind
// the retention window. It is driven by the dispatch loop via MaybeSweep
// and runs at most once per sweep interval.
type Sweeper struct {
	store    job.Store
	hooks    *hook.Registry
	window   time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastRun  time.Time
	sweeping bool
}

// NewSweeper builds a sweeper. window is how long finished records are
// kept; interval is the minimum spacing between sweeps.
func NewSweeper(store job.Store, hooks *hook.Registry, window, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		hooks:    hooks,
		window:   window,
		interval: interval,
		logger:   logger,
	}
}

// MaybeSweep runs a sweep when one is due. A failed sweep does not
// advance the watermark, so the next tick retries.
func (s *Sweeper) MaybeSweep(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if s.sweeping || now.Sub(s.lastRun) < s.interval {
		s.mu.Unlock()
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	err := s.Sweep(ctx, now)

	s.mu.Lock()
	s.sweeping = false
	if err == nil {
		s.lastRun = now
	}
	s.mu.Unlock()
}

// Sweep deletes all terminal records finished before now minus the
// retention window.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.window)
	deleted, err := s.store.DeleteFinishedBefore(ctx, job.TerminalStatuses, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed",
			slog.String("error", err.Error()))
		return err
	}
	if deleted > 0 {
		s.logger.Info("retention sweep removed finished jobs",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
	s.hooks.EmitSweepCompleted(ctx, deleted)
	return nil
}
