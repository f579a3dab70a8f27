// Package kafka consumes judged submission events from a Kafka topic and records them
// through the ingestion path shared with HTTP.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/pscheid92/contestpulse/internal/platform/correlation"
	"github.com/pscheid92/contestpulse/internal/platform/retry"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	defaultPollTimeout = 5 * time.Second
	breakerBackoff     = time.Second
	redeliveryBackoff  = 5 * time.Second
)

type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// Recorder is the ingestion entry point. app.Ingestor satisfies it.
type Recorder interface {
	Record(ctx context.Context, source string, e *domain.SubmissionEvent) (int64, error)
}

// fetcher is the subset of *kafka.Reader used by the consumer.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads the verdict topic. Messages are committed in order after they were
// recorded or found permanently unprocessable, so delivery is at least once. A transient
// failure holds the message and retries it rather than moving past its offset.
type Consumer struct {
	reader   fetcher
	recorder Recorder
	breaker  circuitbreaker.CircuitBreaker[any]
	clock    clockwork.Clock
	poll     time.Duration
	policy   retry.Policy
	source   string
}

func NewConsumer(cfg Config, recorder Recorder, source string, clock clockwork.Clock) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic must not be empty")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(reader, recorder, source, cfg.PollTimeout, clock), nil
}

func newConsumer(reader fetcher, recorder Recorder, source string, poll time.Duration, clock clockwork.Clock) *Consumer {
	if poll <= 0 {
		poll = defaultPollTimeout
	}

	breaker := circuitbreaker.Builder[any]().
		WithFailureRateThreshold(50, 5, 30*time.Second).
		WithDelay(10 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "kafka",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
		}).
		Build()

	return &Consumer{
		reader:   reader,
		recorder: recorder,
		breaker:  breaker,
		clock:    clock,
		poll:     poll,
		source:   source,
		policy: retry.Policy{
			MaxAttempts:    5,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Clock:          clock,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Recording Kafka event failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run blocks until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("Kafka consumer started")
	defer slog.Info("Kafka consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := c.fetch(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return nil
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafkago.ErrGroupClosed):
				return nil
			case errors.Is(err, circuitbreaker.ErrOpen):
				select {
				case <-c.clock.After(breakerBackoff):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			slog.Error("Kafka fetch failed", "error", err)
			continue
		}

		// Committing a later offset would skip msg, so the partition stalls on it
		// until it is recorded, rejected for good or the consumer stops.
		for !c.handle(ctx, msg) {
			select {
			case <-c.clock.After(redeliveryBackoff):
			case <-ctx.Done():
				return nil
			}
		}

		commitCtx, cancel := context.WithTimeout(ctx, c.poll)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil && ctx.Err() == nil {
			slog.Error("Kafka commit failed", "offset", msg.Offset, "error", err)
		}
		cancel()
	}
}

func (c *Consumer) fetch(ctx context.Context) (kafkago.Message, error) {
	if !c.breaker.TryAcquirePermit() {
		return kafkago.Message{}, fmt.Errorf("kafka fetch: %w", circuitbreaker.ErrOpen)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
	defer cancel()

	msg, err := c.reader.FetchMessage(fetchCtx)
	switch {
	case err == nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.breaker.RecordSuccess()
	default:
		c.breaker.RecordError(err)
	}
	return msg, err
}

// handle reports whether msg may be committed.
func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) bool {
	ctx = correlation.WithID(ctx, correlation.NewID())

	event, err := decodeEvent(msg.Value)
	if err != nil {
		slog.WarnContext(ctx, "Dropping undecodable Kafka message", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		return true
	}

	seq, err := retry.Do(ctx, c.policy, classify, func(ctx context.Context) (int64, error) {
		return c.recorder.Record(ctx, c.source, event)
	})
	if err == nil {
		slog.DebugContext(ctx, "Kafka event recorded", "seq", seq, "contest_id", event.ContestID)
		return true
	}

	if isPermanent(err) {
		slog.WarnContext(ctx, "Dropping rejected Kafka event", "offset", msg.Offset, "contest_id", event.ContestID, "error", err)
		return true
	}
	slog.ErrorContext(ctx, "Failed to record Kafka event", "offset", msg.Offset, "contest_id", event.ContestID, "error", err)
	return false
}

func decodeEvent(raw []byte) (*domain.SubmissionEvent, error) {
	var e domain.SubmissionEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode submission event: %w", err)
	}
	return &e, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidEvent) || errors.Is(err, domain.ErrContestNotFound)
}

func classify(err error) retry.Action {
	if isPermanent(err) {
		return retry.Stop
	}
	return retry.Transient(err)
}
