package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/pscheid92/contestpulse/internal/platform/correlation"
)

// Flush triggers, also used as metric labels.
const (
	TriggerTimer     = "timer"
	TriggerForce     = "force"
	TriggerReconcile = "reconcile"
	TriggerFallback  = "fallback"
	TriggerShutdown  = "shutdown"
)

const stopFlushTimeout = 5 * time.Second

// Emission is one collapsed broadcast. Items are in push order.
type Emission struct {
	ContestID string
	Items     []domain.EventSummary
	Trigger   string
}

func (e Emission) Latest() domain.EventSummary {
	return e.Items[len(e.Items)-1]
}

type FireFunc func(ctx context.Context, e Emission)

type DebounceConfig struct {
	Window     time.Duration
	QueueTTL   time.Duration
	ForceDepth int64
	InstanceID string
}

type pendingFlush struct {
	timer clockwork.Timer
	token string
}

// Debouncer collapses bursts per contest into one emission per window across all
// processes. The lock holder owns the window; every process pushes into the shared queue.
// If the holder dies the queue keeps growing until a push sees ForceDepth and flushes it.
type Debouncer struct {
	kind    string
	cfg     DebounceConfig
	locker  domain.Locker
	queue   domain.PendingQueue
	onFire  FireFunc
	clock   clockwork.Clock
	metrics *metrics.ThrottleMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]pendingFlush
	closed  bool
	wg      sync.WaitGroup
}

func NewDebouncer(kind string, cfg DebounceConfig, locker domain.Locker, queue domain.PendingQueue, onFire FireFunc, clock clockwork.Clock, m *metrics.ThrottleMetrics) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		kind:    kind,
		cfg:     cfg,
		locker:  locker,
		queue:   queue,
		onFire:  onFire,
		clock:   clock,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]pendingFlush),
	}
}

func (d *Debouncer) Kind() string { return d.kind }

// Notify records item for the contest's current window.
func (d *Debouncer) Notify(ctx context.Context, contestID string, item domain.EventSummary) {
	d.metrics.Notifications.WithLabelValues(d.kind).Inc()

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		d.fallback(ctx, contestID, item)
		return
	}

	data, err := json.Marshal(item)
	if err != nil {
		d.fallback(ctx, contestID, item)
		return
	}

	depth, err := d.queue.Push(ctx, domain.QueueKey(d.kind, contestID), data, d.cfg.QueueTTL)
	if err != nil {
		slog.WarnContext(ctx, "Pending queue unavailable, emitting unthrottled", "kind", d.kind, "contest_id", contestID, "error", err)
		d.fallback(ctx, contestID, item)
		return
	}

	lockKey := domain.ThrottleKey(d.kind, contestID)
	token := ownerToken(d.cfg.InstanceID)

	acquired, err := d.locker.TryLock(ctx, lockKey, token, d.cfg.Window)
	if err != nil {
		slog.WarnContext(ctx, "Throttle lock unavailable, emitting unthrottled", "kind", d.kind, "contest_id", contestID, "error", err)
		d.fallback(ctx, contestID, item)
		return
	}
	if acquired {
		d.schedule(contestID, token)
		return
	}

	if depth < d.cfg.ForceDepth {
		return
	}

	slog.InfoContext(ctx, "Pending queue reached force-flush depth", "kind", d.kind, "contest_id", contestID, "depth", depth)
	if err := d.locker.ForceLock(ctx, lockKey, token, d.cfg.Window); err != nil {
		slog.WarnContext(ctx, "Force lock failed, emitting unthrottled", "kind", d.kind, "contest_id", contestID, "error", err)
		d.fallback(ctx, contestID, item)
		return
	}
	d.flush(ctx, contestID, token, TriggerForce)
}

// Recover flushes a queue whose window owner is gone. It returns false when a live
// owner still holds the throttle lock.
func (d *Debouncer) Recover(ctx context.Context, contestID string) (bool, error) {
	token := ownerToken(d.cfg.InstanceID)
	acquired, err := d.locker.TryLock(ctx, domain.ThrottleKey(d.kind, contestID), token, d.cfg.Window)
	if err != nil || !acquired {
		return false, err
	}
	d.flush(ctx, contestID, token, TriggerReconcile)
	return true, nil
}

// Stop flushes windows still open on this process and waits for in-flight flushes.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	open := d.pending
	d.pending = make(map[string]pendingFlush)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
	defer cancel()
	for contestID, p := range open {
		if p.timer.Stop() {
			d.flush(ctx, contestID, p.token, TriggerShutdown)
			d.wg.Done()
		}
	}

	d.wg.Wait()
	d.cancel()
}

func (d *Debouncer) schedule(contestID, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	// Our previous window's lock already expired, otherwise TryLock would have failed.
	if prev, ok := d.pending[contestID]; ok && prev.timer.Stop() {
		d.wg.Done()
	}

	d.wg.Add(1)
	timer := d.clock.AfterFunc(d.cfg.Window, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if cur, ok := d.pending[contestID]; ok && cur.token == token {
			delete(d.pending, contestID)
		}
		d.mu.Unlock()

		ctx := correlation.WithID(d.ctx, correlation.NewID())
		d.flush(ctx, contestID, token, TriggerTimer)
	})
	d.pending[contestID] = pendingFlush{timer: timer, token: token}
}

// flush releases the window before draining so pushes racing the drain open a new window.
func (d *Debouncer) flush(ctx context.Context, contestID, token, trigger string) {
	if _, err := d.locker.Unlock(ctx, domain.ThrottleKey(d.kind, contestID), token); err != nil {
		slog.WarnContext(ctx, "Failed to release throttle lock", "kind", d.kind, "contest_id", contestID, "error", err)
	}

	raw, err := d.queue.Drain(ctx, domain.QueueKey(d.kind, contestID))
	if err != nil {
		slog.WarnContext(ctx, "Failed to drain pending queue", "kind", d.kind, "contest_id", contestID, "error", err)
		return
	}

	items := make([]domain.EventSummary, 0, len(raw))
	for _, r := range raw {
		var item domain.EventSummary
		if err := json.Unmarshal(r, &item); err != nil {
			slog.WarnContext(ctx, "Dropping malformed queue item", "kind", d.kind, "contest_id", contestID, "error", err)
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return
	}

	d.emit(ctx, Emission{ContestID: contestID, Items: items, Trigger: trigger})
}

func (d *Debouncer) fallback(ctx context.Context, contestID string, item domain.EventSummary) {
	d.emit(ctx, Emission{ContestID: contestID, Items: []domain.EventSummary{item}, Trigger: TriggerFallback})
}

func (d *Debouncer) emit(ctx context.Context, e Emission) {
	d.metrics.Flushes.WithLabelValues(d.kind, e.Trigger).Inc()
	d.metrics.FlushedEvents.WithLabelValues(d.kind).Add(float64(len(e.Items)))
	slog.DebugContext(ctx, "Debounced emission", "kind", d.kind, "contest_id", e.ContestID, "trigger", e.Trigger, "count", len(e.Items))
	d.onFire(ctx, e)
}
