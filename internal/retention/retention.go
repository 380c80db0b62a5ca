// Package retention periodically removes captured requests older than a
// configured age.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/metrics"
	"github.com/PipeOpsHQ/livehook/internal/store"
)

type Worker struct {
	Store    store.RequestStore
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	now func() time.Time
}

// Run sweeps once immediately and then every Interval until ctx is done. A
// non-positive MaxAge disables the worker.
func (w *Worker) Run(ctx context.Context) {
	if w.MaxAge <= 0 || w.Interval <= 0 {
		return
	}
	w.Sweep(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep deletes everything created before now minus MaxAge.
func (w *Worker) Sweep(ctx context.Context) int64 {
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	n, err := w.Store.Cleanup(ctx, now().Add(-w.MaxAge))
	if err != nil {
		if ctx.Err() == nil {
			w.log().Error("retention sweep failed", zap.Error(err))
		}
		return 0
	}
	w.Metrics.ObserveRetention(n)
	if n > 0 {
		w.log().Info("retention sweep", zap.Int64("deleted", n))
	}
	return n
}

func (w *Worker) log() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
