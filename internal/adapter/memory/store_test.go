package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_ExclusiveUntilTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock)
	ctx := context.Background()

	ok, err := s.TryLock(ctx, "throttle:leaderboard:c1", "a", 3*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.TryLock(ctx, "throttle:leaderboard:c1", "b", 3*time.Second)
	assert.False(t, ok, "held lock must not be acquired by another owner")

	clock.Advance(3 * time.Second)
	ok, _ = s.TryLock(ctx, "throttle:leaderboard:c1", "b", 3*time.Second)
	assert.True(t, ok, "expired lock is up for grabs")
}

func TestLock_OnlyOwnerUnlocksAndRefreshes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock)
	ctx := context.Background()

	_, _ = s.TryLock(ctx, "k", "owner", time.Second)

	released, _ := s.Unlock(ctx, "k", "intruder")
	assert.False(t, released)
	refreshed, _ := s.Refresh(ctx, "k", "intruder", time.Minute)
	assert.False(t, refreshed)

	refreshed, _ = s.Refresh(ctx, "k", "owner", time.Minute)
	assert.True(t, refreshed)
	clock.Advance(30 * time.Second)
	ok, _ := s.TryLock(ctx, "k", "other", time.Second)
	assert.False(t, ok, "refresh extended the ttl")

	released, _ = s.Unlock(ctx, "k", "owner")
	assert.True(t, released)
	ok, _ = s.TryLock(ctx, "k", "other", time.Second)
	assert.True(t, ok)
}

func TestForceLock_TakesOverHeldLock(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	_, _ = s.TryLock(ctx, "k", "crashed", time.Minute)
	require.NoError(t, s.ForceLock(ctx, "k", "rescuer", time.Second))

	released, _ := s.Unlock(ctx, "k", "crashed")
	assert.False(t, released, "stale owner no longer holds the key")
	released, _ = s.Unlock(ctx, "k", "rescuer")
	assert.True(t, released)
}

func TestCache_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock)
	ctx := context.Background()

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	snap := &domain.LeaderboardSnapshot{ContestID: "c1", Entries: []domain.StandingsEntry{{ParticipantID: "p1", Rank: 1}}}
	stored, err := s.Set(ctx, snap, 0, 30*time.Second)
	require.NoError(t, err)
	require.True(t, stored)

	got, _ = s.Get(ctx, "c1")
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.Entries[0].ParticipantID)

	clock.Advance(30 * time.Second)
	got, _ = s.Get(ctx, "c1")
	assert.Nil(t, got)

	_, err = s.Set(ctx, snap, 0, 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "c1"))
	got, _ = s.Get(ctx, "c1")
	assert.Nil(t, got)
}

func TestCache_SetRejectsStaleGeneration(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	gen, err := s.Generation(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "c1"))

	snap := &domain.LeaderboardSnapshot{ContestID: "c1"}
	stored, err := s.Set(ctx, snap, gen, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, stored)
	got, _ := s.Get(ctx, "c1")
	assert.Nil(t, got)

	gen, _ = s.Generation(ctx, "c1")
	assert.Equal(t, int64(1), gen)
	stored, err = s.Set(ctx, snap, gen, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, stored)

	other, _ := s.Generation(ctx, "c2")
	assert.Equal(t, int64(0), other, "generations are per contest")
}

func TestQueue_PushDrainAndTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock)
	ctx := context.Background()

	depth, _ := s.Push(ctx, "queue:submissions:c1", []byte("1"), time.Minute)
	assert.EqualValues(t, 1, depth)
	depth, _ = s.Push(ctx, "queue:submissions:c1", []byte("2"), time.Minute)
	assert.EqualValues(t, 2, depth)

	items, err := s.Drain(ctx, "queue:submissions:c1")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2")}, items)

	items, _ = s.Drain(ctx, "queue:submissions:c1")
	assert.Empty(t, items)

	_, _ = s.Push(ctx, "queue:submissions:c1", []byte("3"), time.Minute)
	clock.Advance(time.Minute)
	items, _ = s.Drain(ctx, "queue:submissions:c1")
	assert.Empty(t, items, "unflushed queue self-cleans after its ttl")
}

func TestQueue_Keys(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	_, _ = s.Push(ctx, "queue:submissions:c2", []byte("x"), time.Minute)
	_, _ = s.Push(ctx, "queue:submissions:c1", []byte("x"), time.Minute)
	_, _ = s.Push(ctx, "queue:leaderboard:c1", []byte("x"), time.Minute)

	keys, err := s.Keys(ctx, "queue:submissions:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"queue:submissions:c1", "queue:submissions:c2"}, keys)
}
