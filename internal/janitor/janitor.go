// Package janitor runs periodic expiry sweeps over stored tracks and
// finished jobs.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cleaner removes entries older than maxAge and returns their ids.
type Cleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// Forgetter drops index entries that reference removed tracks.
type Forgetter interface {
	Forget(ctx context.Context, ids []string) (int64, error)
}

// Janitor owns one background goroutine that expires entries on a fixed
// interval. It is started and stopped by the process lifecycle.
type Janitor struct {
	store    Cleaner
	catalog  Forgetter
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Janitor. catalog may be nil.
func New(store Cleaner, catalog Forgetter, maxAge, interval time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:    store,
		catalog:  catalog,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
	}
}

// Start runs a sweep immediately and then every interval until ctx is
// cancelled or Stop is called. Calling Start on a running janitor is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}(j.done)

	j.logger.Info("janitor started",
		slog.Duration("max_age", j.maxAge),
		slog.Duration("interval", j.interval),
	)
}

// Stop cancels the background goroutine and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	j.logger.Info("janitor stopped")
}

// RunOnce performs a single sweep and returns the removed ids.
func (j *Janitor) RunOnce(ctx context.Context) ([]string, error) {
	removed, err := j.store.Cleanup(ctx, j.maxAge)
	if len(removed) > 0 && j.catalog != nil {
		if _, ferr := j.catalog.Forget(ctx, removed); ferr != nil {
			j.logger.Warn("failed to forget expired chops", slog.String("error", ferr.Error()))
		}
	}
	return removed, err
}

func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.RunOnce(ctx)
	if err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup failed", slog.String("error", err.Error()))
	}
	if len(removed) > 0 {
		j.logger.Info("expired entries removed", slog.Int("count", len(removed)))
	}
}
