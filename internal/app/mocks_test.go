package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pscheid92/contestpulse/internal/domain"
)

var errStoreDown = errors.New("store down")

// --- Event and contest stores ---

type mockEventStore struct {
	mu     sync.Mutex
	events []domain.SubmissionEvent
	err    error
}

func (m *mockEventStore) Append(_ context.Context, e *domain.SubmissionEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	e.Seq = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return e.Seq, nil
}

func (m *mockEventStore) StreamEvents(_ context.Context, contestID string, fn func(domain.SubmissionEvent) error) error {
	m.mu.Lock()
	events := append([]domain.SubmissionEvent(nil), m.events...)
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return err
	}
	for _, e := range events {
		if e.ContestID != contestID {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

type mockContestStore struct {
	contests map[string]*domain.Contest
	rosters  map[string][]string
}

func newMockContestStore(c *domain.Contest, roster ...string) *mockContestStore {
	return &mockContestStore{
		contests: map[string]*domain.Contest{c.ID: c},
		rosters:  map[string][]string{c.ID: roster},
	}
}

func (m *mockContestStore) GetContest(_ context.Context, contestID string) (*domain.Contest, error) {
	c, ok := m.contests[contestID]
	if !ok {
		return nil, domain.ErrContestNotFound
	}
	return c, nil
}

func (m *mockContestStore) Roster(_ context.Context, contestID string) ([]string, error) {
	return m.rosters[contestID], nil
}

// --- Standings computer ---

type mockComputer struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	entered chan struct{}
	fn      func(contestID string) (*domain.LeaderboardSnapshot, error)
}

func (m *mockComputer) ComputeStandings(ctx context.Context, contestID string) (*domain.LeaderboardSnapshot, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.fn != nil {
		return m.fn(contestID)
	}
	return &domain.LeaderboardSnapshot{ContestID: contestID, Entries: []domain.StandingsEntry{{ParticipantID: "p1", Rank: 1}}}, nil
}

func (m *mockComputer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Publisher and local delivery ---

type published struct {
	ContestID string
	Msg       domain.ServerMessage
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(_ context.Context, contestID string, msg domain.ServerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, published{ContestID: contestID, Msg: msg})
	return nil
}

func (m *mockPublisher) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.msgs...)
}

func (m *mockPublisher) ofType(t domain.MessageType) []published {
	var out []published
	for _, p := range m.messages() {
		if p.Msg.Type() == t {
			out = append(out, p)
		}
	}
	return out
}

type mockDeliverer struct {
	mu        sync.Mutex
	delivered []published
	ch        chan published
}

func newMockDeliverer() *mockDeliverer {
	return &mockDeliverer{ch: make(chan published, 64)}
}

func (m *mockDeliverer) Deliver(contestID string, msg domain.ServerMessage) {
	m.mu.Lock()
	m.delivered = append(m.delivered, published{ContestID: contestID, Msg: msg})
	m.mu.Unlock()
	m.ch <- published{ContestID: contestID, Msg: msg}
}

type mockInvalidator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockInvalidator) Invalidate(_ context.Context, contestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, contestID)
	return m.err
}

func (m *mockInvalidator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- Failing coordination store ---

type failingStore struct{}

func (failingStore) TryLock(context.Context, string, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingStore) ForceLock(context.Context, string, string, time.Duration) error { return errStoreDown }
func (failingStore) Refresh(context.Context, string, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingStore) Unlock(context.Context, string, string) (bool, error) { return false, errStoreDown }
func (failingStore) Get(context.Context, string) (*domain.LeaderboardSnapshot, error) {
	return nil, errStoreDown
}
func (failingStore) Generation(context.Context, string) (int64, error) { return 0, errStoreDown }
func (failingStore) Set(context.Context, *domain.LeaderboardSnapshot, int64, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingStore) Delete(context.Context, string) error { return errStoreDown }
func (failingStore) Push(context.Context, string, []byte, time.Duration) (int64, error) {
	return 0, errStoreDown
}
func (failingStore) Drain(context.Context, string) ([][]byte, error) { return nil, errStoreDown }
func (failingStore) Keys(context.Context, string) ([]string, error)  { return nil, errStoreDown }

type failingBus struct{}

func (failingBus) Publish(context.Context, domain.Envelope) error { return errStoreDown }
func (failingBus) Subscribe(context.Context) (<-chan domain.Envelope, error) {
	return nil, errStoreDown
}
