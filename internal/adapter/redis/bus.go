package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pscheid92/contestpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const busBuffer = 256

// Bus publishes every contest's envelopes on one shared channel. Routing happens on the
// contestId inside the payload, keeping the subscription count constant per process.
type Bus struct {
	rdb     *goredis.Client
	channel string
}

var _ domain.Bus = (*Bus)(nil)

func NewBus(rdb *goredis.Client) *Bus {
	return &Bus{rdb: rdb, channel: domain.BroadcastChannel}
}

func (b *Bus) Publish(ctx context.Context, envelope domain.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}
	return nil
}

// Subscribe returns once Redis confirmed the subscription, so nothing published after
// it returns is missed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan domain.Envelope, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	out := make(chan domain.Envelope, busBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var env domain.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Warn("Dropping malformed broadcast envelope", "error", err)
					continue
				}
				select {
				case out <- env:
				default:
					slog.Warn("Broadcast subscriber is slow, dropping envelope", "contest_id", env.ContestID)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
