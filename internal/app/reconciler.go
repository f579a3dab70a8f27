package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/pscheid92/contestpulse/internal/platform/correlation"
)

const sweepTimeout = 10 * time.Second

// QueueReconciler flushes pending queues whose window owner crashed on a contest that
// went quiet, so no later push reaches the force-flush depth.
type QueueReconciler struct {
	elector    *LeaderElector
	queue      domain.PendingQueue
	debouncers []*Debouncer
	interval   time.Duration
	clock      clockwork.Clock
	stopCh     chan struct{}
	doneCh     chan struct{}
}

func NewQueueReconciler(elector *LeaderElector, queue domain.PendingQueue, debouncers []*Debouncer, interval time.Duration, clock clockwork.Clock) *QueueReconciler {
	return &QueueReconciler{
		elector:    elector,
		queue:      queue,
		debouncers: debouncers,
		interval:   interval,
		clock:      clock,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (r *QueueReconciler) Start(ctx context.Context) {
	defer close(r.doneCh)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.tick(ctx)
		case <-r.stopCh:
			r.release()
			slog.Info("Queue reconciler stopped")
			return
		case <-ctx.Done():
			r.release()
			slog.Info("Queue reconciler context cancelled")
			return
		}
	}
}

// Stop ends the loop and waits for it to release leadership.
func (r *QueueReconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *QueueReconciler) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(correlation.WithID(ctx, correlation.NewID()), sweepTimeout)
	defer cancel()

	leader, err := r.elector.TryAcquire(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Leader election failed", "error", err)
		return
	}
	if !leader {
		return
	}

	if n := r.Sweep(ctx); n > 0 {
		slog.InfoContext(ctx, "Recovered orphaned queues", "count", n)
	}
}

// Sweep recovers every orphaned queue and returns how many were flushed.
func (r *QueueReconciler) Sweep(ctx context.Context) int {
	recovered := 0
	for _, d := range r.debouncers {
		keys, err := r.queue.Keys(ctx, domain.QueuePattern(d.Kind()))
		if err != nil {
			slog.WarnContext(ctx, "Failed to list pending queues", "kind", d.Kind(), "error", err)
			continue
		}

		for _, key := range keys {
			contestID, ok := domain.ContestFromQueueKey(d.Kind(), key)
			if !ok {
				continue
			}
			flushed, err := d.Recover(ctx, contestID)
			if err != nil {
				slog.WarnContext(ctx, "Failed to recover pending queue", "kind", d.Kind(), "contest_id", contestID, "error", err)
				continue
			}
			if flushed {
				recovered++
			}
		}
	}
	return recovered
}

func (r *QueueReconciler) release() {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := r.elector.Release(ctx); err != nil {
		slog.Warn("Failed to release reconciler leadership", "error", err)
	}
}
