package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/contestpulse/internal/adapter/memory"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *mockDeliverer) published {
	t.Helper()
	select {
	case p := <-d.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return published{}
	}
}

func TestRelay_CrossProcessFanOut(t *testing.T) {
	bus := memory.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	procA, procB := newMockDeliverer(), newMockDeliverer()
	relayA := NewRelay(bus, procA, metrics.NewSet(prometheus.NewRegistry()).Throttle)
	relayB := NewRelay(bus, procB, metrics.NewSet(prometheus.NewRegistry()).Throttle)
	require.NoError(t, relayA.Start(ctx))
	require.NoError(t, relayB.Start(ctx))

	msg := domain.LeaderboardRefetch{Timestamp: contestStart}
	require.NoError(t, relayA.Publish(ctx, "c1", msg))

	for _, d := range []*mockDeliverer{procA, procB} {
		got := receive(t, d)
		assert.Equal(t, "c1", got.ContestID)
		assert.Equal(t, msg.Timestamp, got.Msg.(domain.LeaderboardRefetch).Timestamp.UTC())
	}

	cancel()
	relayA.Wait()
	relayB.Wait()
}

func TestRelay_PreservesTarget(t *testing.T) {
	bus := memory.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := newMockDeliverer()
	relay := NewRelay(bus, local, metrics.NewSet(prometheus.NewRegistry()).Throttle)
	require.NoError(t, relay.Start(ctx))

	require.NoError(t, relay.Publish(ctx, "c1", domain.Violation{TargetParticipantID: "alice", Timestamp: contestStart}))

	got := receive(t, local)
	assert.Equal(t, "alice", got.Msg.Target())
}

func TestRelay_BusDownDeliversLocally(t *testing.T) {
	local := newMockDeliverer()
	m := metrics.NewSet(prometheus.NewRegistry()).Throttle
	relay := NewRelay(failingBus{}, local, m)

	require.NoError(t, relay.Publish(context.Background(), "c1", domain.ContestEnded{Message: "bye"}))

	got := receive(t, local)
	assert.Equal(t, domain.MsgContestEnded, got.Msg.Type())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Published.WithLabelValues("local_fallback")))
}

func TestRelay_StartFailsWhenSubscribeFails(t *testing.T) {
	relay := NewRelay(failingBus{}, newMockDeliverer(), metrics.NewSet(prometheus.NewRegistry()).Throttle)
	assert.ErrorIs(t, relay.Start(context.Background()), errStoreDown)
}

func TestRelay_DropsUndecodableEnvelope(t *testing.T) {
	bus := memory.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := newMockDeliverer()
	relay := NewRelay(bus, local, metrics.NewSet(prometheus.NewRegistry()).Throttle)
	require.NoError(t, relay.Start(ctx))

	require.NoError(t, bus.Publish(ctx, domain.Envelope{ContestID: "c1", Data: []byte(`{"type":"nope"}`)}))
	require.NoError(t, relay.Publish(ctx, "c1", domain.Pong{Timestamp: contestStart}))

	assert.Equal(t, domain.MsgPong, receive(t, local).Msg.Type())
}
