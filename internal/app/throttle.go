package app

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
)

const (
	KindSubmissions = "submissions"
	KindLeaderboard = "leaderboard"
)

// CacheInvalidator is satisfied by Leaderboard.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, contestID string) error
}

// Throttle routes each event to the debouncers and sends violations straight through.
type Throttle struct {
	submissions *Debouncer
	leaderboard *Debouncer
	publisher   Publisher
	cache       CacheInvalidator
	clock       clockwork.Clock
}

// NewThrottle wires both debouncers onto publisher. Debouncers must be stopped via Stop.
func NewThrottle(cfg DebounceConfig, locker domain.Locker, queue domain.PendingQueue, publisher Publisher, cache CacheInvalidator, clock clockwork.Clock, m *metrics.ThrottleMetrics) *Throttle {
	t := &Throttle{publisher: publisher, cache: cache, clock: clock}
	t.submissions = NewDebouncer(KindSubmissions, cfg, locker, queue, t.emitSubmissions, clock, m)
	t.leaderboard = NewDebouncer(KindLeaderboard, cfg, locker, queue, t.emitLeaderboard, clock, m)
	return t
}

func (t *Throttle) Debouncers() []*Debouncer {
	return []*Debouncer{t.submissions, t.leaderboard}
}

// Notify is called after the event has been appended to the log.
func (t *Throttle) Notify(ctx context.Context, e *domain.SubmissionEvent) {
	if e.RankChanging() {
		if err := t.cache.Invalidate(ctx, e.ContestID); err != nil {
			slog.WarnContext(ctx, "Leaderboard invalidation failed", "contest_id", e.ContestID, "error", err)
		}
	}

	summary := e.Summary()
	if e.IsViolationOnly {
		msg := domain.Violation{
			TargetParticipantID: e.ParticipantID,
			Violation:           e.Violations,
			Timestamp:           t.clock.Now().UTC(),
		}
		if err := t.publisher.Publish(ctx, e.ContestID, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish violation", "contest_id", e.ContestID, "participant_id", e.ParticipantID, "error", err)
		}
	} else {
		t.submissions.Notify(ctx, e.ContestID, summary)
	}

	t.leaderboard.Notify(ctx, e.ContestID, summary)
}

func (t *Throttle) Stop() {
	t.submissions.Stop()
	t.leaderboard.Stop()
}

func (t *Throttle) emitSubmissions(ctx context.Context, e Emission) {
	msg := domain.BatchSubmissions{
		Count:            len(e.Items),
		LatestSubmission: e.Latest(),
		Timestamp:        t.clock.Now().UTC(),
	}
	if err := t.publisher.Publish(ctx, e.ContestID, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish submission batch", "contest_id", e.ContestID, "error", err)
	}
}

func (t *Throttle) emitLeaderboard(ctx context.Context, e Emission) {
	msg := domain.LeaderboardRefetch{Timestamp: t.clock.Now().UTC()}
	if err := t.publisher.Publish(ctx, e.ContestID, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish leaderboard refetch", "contest_id", e.ContestID, "error", err)
	}
}
