package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderElector_SingleLeader(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	elector1 := NewLeaderElector(store, "instance-1")
	elector2 := NewLeaderElector(store, "instance-2")

	acquired, err := elector1.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "first instance should acquire leadership")

	acquired, err = elector2.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "second instance must not steal leadership")

	acquired, err = elector1.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "leader keeps leadership on re-acquire")
}

func TestLeaderElector_RenewAndRelease(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	elector1 := NewLeaderElector(store, "instance-1")
	elector2 := NewLeaderElector(store, "instance-2")

	_, err := elector1.TryAcquire(ctx)
	require.NoError(t, err)
	require.NoError(t, elector1.Renew(ctx))
	assert.ErrorIs(t, elector2.Renew(ctx), ErrLeadershipLost)

	require.NoError(t, elector1.Release(ctx))

	acquired, err := elector2.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "released leadership can be taken over")
}

func TestLeaderElector_ExpiredLeaseTakenOver(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewStore(clock)
	ctx := context.Background()

	elector1 := NewLeaderElector(store, "instance-1")
	elector2 := NewLeaderElector(store, "instance-2")

	_, err := elector1.TryAcquire(ctx)
	require.NoError(t, err)

	clock.Advance(leaderLockTTL + time.Second)

	acquired, err := elector2.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.ErrorIs(t, elector1.Renew(ctx), ErrLeadershipLost)
}
