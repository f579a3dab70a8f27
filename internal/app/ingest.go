package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
)

const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

const contestEndedMessage = "The contest has ended. Final standings are available."

// Notifier is satisfied by Throttle.
type Notifier interface {
	Notify(ctx context.Context, e *domain.SubmissionEvent)
}

// Ingestor is the single entry point for new events and judge callbacks.
type Ingestor struct {
	events    domain.EventStore
	contests  domain.ContestStore
	notifier  Notifier
	publisher Publisher
	cache     CacheInvalidator
	clock     clockwork.Clock
	metrics   *metrics.IngestMetrics
}

func NewIngestor(events domain.EventStore, contests domain.ContestStore, notifier Notifier, publisher Publisher, cache CacheInvalidator, clock clockwork.Clock, m *metrics.IngestMetrics) *Ingestor {
	return &Ingestor{
		events:    events,
		contests:  contests,
		notifier:  notifier,
		publisher: publisher,
		cache:     cache,
		clock:     clock,
		metrics:   m,
	}
}

// Record validates e, appends it to the log and notifies the throttle. e.Seq is set on success.
func (i *Ingestor) Record(ctx context.Context, source string, e *domain.SubmissionEvent) (int64, error) {
	seq, err := i.record(ctx, e)
	if err != nil {
		i.metrics.Events.WithLabelValues(source, "rejected").Inc()
		return 0, err
	}
	i.metrics.Events.WithLabelValues(source, "accepted").Inc()
	return seq, nil
}

func (i *Ingestor) record(ctx context.Context, e *domain.SubmissionEvent) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if _, err := i.contests.GetContest(ctx, e.ContestID); err != nil {
		return 0, err
	}

	seq, err := i.events.Append(ctx, e)
	if err != nil {
		return 0, err
	}
	e.Seq = seq

	slog.DebugContext(ctx, "Event recorded", "contest_id", e.ContestID, "participant_id", e.ParticipantID, "seq", seq, "verdict", e.Verdict)
	i.notifier.Notify(ctx, e)
	return seq, nil
}

// ExecutionResult forwards an opaque judge result to one participant's connections.
func (i *Ingestor) ExecutionResult(ctx context.Context, contestID, participantID string, result map[string]json.RawMessage) error {
	if participantID == "" {
		return fmt.Errorf("%w: participantId is required", domain.ErrInvalidEvent)
	}
	return i.publisher.Publish(ctx, contestID, domain.ExecutionResult{
		TargetParticipantID: participantID,
		Result:              result,
		Timestamp:           i.clock.Now().UTC(),
	})
}

// EndContest announces the end to every room member and drops the cached board
// so the next read reflects the final log.
func (i *Ingestor) EndContest(ctx context.Context, contestID string) error {
	if _, err := i.contests.GetContest(ctx, contestID); err != nil {
		return err
	}

	if err := i.cache.Invalidate(ctx, contestID); err != nil {
		slog.WarnContext(ctx, "Leaderboard invalidation failed", "contest_id", contestID, "error", err)
	}

	slog.InfoContext(ctx, "Contest ended", "contest_id", contestID)
	return i.publisher.Publish(ctx, contestID, domain.ContestEnded{
		Message:   contestEndedMessage,
		Timestamp: i.clock.Now().UTC(),
	})
}
