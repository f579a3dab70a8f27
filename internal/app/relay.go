package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
)

// LocalDeliverer pushes a message to this process's sockets in a contest room.
type LocalDeliverer interface {
	Deliver(contestID string, msg domain.ServerMessage)
}

// Publisher is what use cases broadcast through.
type Publisher interface {
	Publish(ctx context.Context, contestID string, msg domain.ServerMessage) error
}

// Relay fans messages out to every process via the shared Bus. Each process, including
// the publisher, receives its own publish back and delivers it to local sockets.
type Relay struct {
	bus     domain.Bus
	local   LocalDeliverer
	metrics *metrics.ThrottleMetrics
	wg      sync.WaitGroup
}

var _ Publisher = (*Relay)(nil)

func NewRelay(bus domain.Bus, local LocalDeliverer, m *metrics.ThrottleMetrics) *Relay {
	return &Relay{bus: bus, local: local, metrics: m}
}

// Publish never loses a message for local clients: when the bus is down the message is
// delivered to this process only.
func (r *Relay) Publish(ctx context.Context, contestID string, msg domain.ServerMessage) error {
	data, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}

	if err := r.bus.Publish(ctx, domain.Envelope{ContestID: contestID, Data: data}); err != nil {
		slog.WarnContext(ctx, "Relay publish failed, delivering locally", "contest_id", contestID, "type", msg.Type(), "error", err)
		r.metrics.Published.WithLabelValues("local_fallback").Inc()
		r.local.Deliver(contestID, msg)
		return nil
	}

	r.metrics.Published.WithLabelValues("ok").Inc()
	return nil
}

// Start subscribes and forwards envelopes to local delivery until ctx is done.
// It returns once the subscription is active.
func (r *Relay) Start(ctx context.Context) error {
	ch, err := r.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to broadcast channel: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for env := range ch {
			msg, err := domain.DecodeMessage(env.Data)
			if err != nil {
				slog.Warn("Dropping undecodable relay message", "contest_id", env.ContestID, "error", err)
				continue
			}
			r.local.Deliver(env.ContestID, msg)
		}
		slog.Info("Relay subscription closed")
	}()
	return nil
}

// Wait blocks until the forwarding goroutine has exited.
func (r *Relay) Wait() {
	r.wg.Wait()
}
