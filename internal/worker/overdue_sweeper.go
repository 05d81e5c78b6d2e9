package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

// SweepLockKey serializes sweeps across API replicas.
const SweepLockKey = "helpdesk:overdue-sweep"

// Sweeper runs one overdue pass.
type Sweeper interface {
	RunOverdueSweep(ctx context.Context) (service.SweepReport, error)
}

// Locker acquires a short-lived distributed lock. A nil release with a nil
// error means another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// OverdueSweeper runs the sweep on a fixed cadence.
type OverdueSweeper struct {
	sweeper  Sweeper
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

// NewOverdueSweeper builds the loop. locker may be nil for single-instance deployments.
func NewOverdueSweeper(sweeper Sweeper, locker Locker, interval, lockTTL time.Duration, logger *zap.Logger) *OverdueSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueSweeper{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   logger.Named("overdue-sweeper"),
	}
}

// Start runs one sweep immediately and then once per interval until parent
// is cancelled or Stop is called. Calling Start twice is a no-op.
func (w *OverdueSweeper) Start(parent context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	w.stop = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
	w.logger.Info("overdue sweeper started", zap.Duration("interval", w.interval))
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (w *OverdueSweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.stop, w.done
	w.stop = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("overdue sweeper stopped")
}

// RunOnce performs a single locked sweep and reports whether it ran.
func (w *OverdueSweeper) RunOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if w.locker != nil {
		release, err := w.locker.TryLock(ctx, SweepLockKey, w.lockTTL)
		switch {
		case err != nil:
			w.logger.Warn("sweep lock unavailable, running unlocked", zap.Error(err))
		case release == nil:
			w.logger.Debug("sweep lock held elsewhere")
			return false
		default:
			defer func() {
				if err := release(context.Background()); err != nil {
					w.logger.Warn("failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	if _, err := w.sweeper.RunOverdueSweep(ctx); err != nil {
		w.logger.Error("overdue sweep aborted", zap.Error(err))
	}
	return true
}
