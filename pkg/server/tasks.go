package server

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/server/monitor"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

// Retention deletes records older than a fixed age on a schedule.
type Retention struct {
	Store    storage.Storage
	MaxAge   time.Duration
	Interval time.Duration
	Monitor  *monitor.TaskMonitor
	Logger   *zap.Logger

	// BaseWait is the first retry delay. Defaults to config.RetentionBaseWait.
	BaseWait time.Duration
	now      func() time.Time
}

// Run enforces retention once on startup and then every Interval until ctx
// is cancelled.
func (r *Retention) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := r.Interval
	if interval <= 0 {
		interval = config.RetentionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Logger.Info("Retention scheduler started",
		zap.Duration("max_age", r.MaxAge), zap.Duration("interval", interval))
	r.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			r.Logger.Info("Stopping retention scheduler")
			return
		}
	}
}

// RunOnce deletes expired records, retrying with exponential backoff.
func (r *Retention) RunOnce(ctx context.Context) error {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	base := r.BaseWait
	if base <= 0 {
		base = config.RetentionBaseWait
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, config.RetentionRetries), ctx)

	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		cutoff := now().Add(-r.MaxAge)
		if err := r.Store.Delete(ctx, cutoff); err != nil {
			r.Monitor.RecordFailure(err)
			r.Logger.Warn("Retention failed",
				zap.Int("attempt", attempt), zap.Int("max_attempts", config.RetentionRetries+1), zap.Error(err))
			if status := r.Monitor.Status(); status.ConsecutiveErrors > 3 {
				r.Logger.Error("Retention has been failing", zap.Int("consecutive_errors", status.ConsecutiveErrors))
			}
			return err
		}
		r.Monitor.RecordSuccess()
		r.Logger.Info("Retention completed",
			zap.Time("cutoff", cutoff), zap.Duration("took", time.Since(start).Round(time.Millisecond)))
		return nil
	}

	err := backoff.Retry(op, policy)
	if err != nil && ctx.Err() == nil {
		r.Logger.Error("Retention failed after retries, will retry on next schedule",
			zap.Int("attempts", attempt), zap.Error(err))
	}
	return err
}

// gcRunner is implemented by stores with a value log to reclaim.
type gcRunner interface {
	RunGC(discardRatio float64) error
}

// RunBadgerGC runs BadgerDB garbage collection periodically to reclaim disk
// space. It returns immediately for other backends.
func RunBadgerGC(ctx context.Context, store storage.Storage, logger *zap.Logger, wg *sync.WaitGroup) {
	defer wg.Done()

	gc, ok := store.(gcRunner)
	if !ok {
		logger.Debug("Storage has no value log, skipping GC")
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()
	logger.Info("BadgerDB GC scheduler started", zap.Duration("interval", config.BadgerGCInterval))

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			// An error here means no file was worth rewriting
			if err := gc.RunGC(config.BadgerGCDiscard); err != nil {
				logger.Debug("GC found nothing to rewrite", zap.Duration("took", time.Since(start)))
			} else {
				logger.Info("GC reclaimed disk space", zap.Duration("took", time.Since(start).Round(time.Millisecond)))
			}
		case <-ctx.Done():
			logger.Info("Stopping BadgerDB GC scheduler")
			return
		}
	}
}
