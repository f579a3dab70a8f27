package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/contestpulse/internal/adapter/memory"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type throttleFixture struct {
	throttle  *Throttle
	publisher *mockPublisher
	cache     *mockInvalidator
	clock     *clockwork.FakeClock
}

func newThrottleFixture(t *testing.T) *throttleFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(contestStart)
	store := memory.NewStore(clock)
	pub := &mockPublisher{}
	cache := &mockInvalidator{}
	cfg := testDebounceConfig
	cfg.ForceDepth = 50
	th := NewThrottle(cfg, store, store, pub, cache, clock, metrics.NewSet(prometheus.NewRegistry()).Throttle)
	t.Cleanup(th.Stop)
	return &throttleFixture{throttle: th, publisher: pub, cache: cache, clock: clock}
}

func (f *throttleFixture) fireWindows(t *testing.T, timers int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, timers))
	f.clock.Advance(testWindow)
}

func (f *throttleFixture) waitFor(t *testing.T, typ domain.MessageType, n int) []published {
	t.Helper()
	var got []published
	require.Eventually(t, func() bool {
		got = f.publisher.ofType(typ)
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestThrottle_SubmissionBurst(t *testing.T) {
	f := newThrottleFixture(t)
	ctx := context.Background()

	for i := range 4 {
		e := submission("alice", "p1", domain.VerdictWrongAnswer, i)
		e.ContestID = "c1"
		e.Seq = int64(i + 1)
		f.throttle.Notify(ctx, &e)
	}
	assert.Empty(t, f.publisher.messages(), "nothing is sent before the window closes")

	f.fireWindows(t, 2)

	batches := f.waitFor(t, domain.MsgBatchSubmissions, 1)
	batch := batches[0].Msg.(domain.BatchSubmissions)
	assert.Equal(t, 4, batch.Count)
	assert.Equal(t, int64(4), batch.LatestSubmission.Seq)
	assert.Equal(t, f.clock.Now(), batch.Timestamp)

	refetches := f.waitFor(t, domain.MsgLeaderboardRefetch, 1)
	assert.Equal(t, "c1", refetches[0].ContestID)
	assert.Len(t, f.publisher.messages(), 2)
	assert.Equal(t, 0, f.cache.count(), "wrong answers do not invalidate")
}

func TestThrottle_RankChangingEventInvalidates(t *testing.T) {
	f := newThrottleFixture(t)
	ctx := context.Background()

	ac := submission("alice", "p1", domain.VerdictAccepted, 5)
	ac.ContestID = "c1"
	f.throttle.Notify(ctx, &ac)

	final := domain.SubmissionEvent{ContestID: "c1", ParticipantID: "alice", SubmittedAt: contestStart, IsFinal: true}
	f.throttle.Notify(ctx, &final)

	assert.Equal(t, 2, f.cache.count())
}

func TestThrottle_ViolationIsTargetedAndImmediate(t *testing.T) {
	f := newThrottleFixture(t)
	ctx := context.Background()

	v := domain.SubmissionEvent{
		ContestID:       "c1",
		ParticipantID:   "alice",
		SubmittedAt:     contestStart,
		IsViolationOnly: true,
		Violations:      domain.ViolationCounters{TabSwitchCount: 2, PasteAttempts: 1},
	}
	f.throttle.Notify(ctx, &v)

	violations := f.publisher.ofType(domain.MsgViolation)
	require.Len(t, violations, 1)
	msg := violations[0].Msg.(domain.Violation)
	assert.Equal(t, "alice", msg.Target())
	assert.Equal(t, v.Violations, msg.Violation)

	// Only the leaderboard debouncer saw the violation.
	f.fireWindows(t, 1)
	f.waitFor(t, domain.MsgLeaderboardRefetch, 1)
	assert.Empty(t, f.publisher.ofType(domain.MsgBatchSubmissions))
}

func TestThrottle_StoreDownStillBroadcasts(t *testing.T) {
	pub := &mockPublisher{}
	clock := clockwork.NewFakeClock()
	th := NewThrottle(testDebounceConfig, failingStore{}, failingStore{}, pub, &mockInvalidator{}, clock, metrics.NewSet(prometheus.NewRegistry()).Throttle)
	defer th.Stop()

	e := submission("alice", "p1", domain.VerdictWrongAnswer, 1)
	e.ContestID = "c1"
	th.Notify(context.Background(), &e)

	assert.Len(t, pub.ofType(domain.MsgBatchSubmissions), 1)
	assert.Len(t, pub.ofType(domain.MsgLeaderboardRefetch), 1)
}
