// Package memory implements the coordination contracts in process memory for
// single-instance deployments and tests. TTLs follow the injected clock.
package memory

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/domain"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

type queueEntry struct {
	items     [][]byte
	expiresAt time.Time
}

type cacheEntry struct {
	snapshot  domain.LeaderboardSnapshot
	expiresAt time.Time
}

// Store is a Locker, SnapshotCache and PendingQueue. Expired entries are dropped lazily on access.
type Store struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	locks  map[string]lockEntry
	queues map[string]*queueEntry
	cache  map[string]cacheEntry
	gens   map[string]int64
}

var (
	_ domain.Locker        = (*Store)(nil)
	_ domain.SnapshotCache = (*Store)(nil)
	_ domain.PendingQueue  = (*Store)(nil)
)

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:  clock,
		locks:  make(map[string]lockEntry),
		queues: make(map[string]*queueEntry),
		cache:  make(map[string]cacheEntry),
		gens:   make(map[string]int64),
	}
}

func (s *Store) expired(at time.Time) bool {
	return !s.clock.Now().Before(at)
}

// --- Locker ---

func (s *Store) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[key]; ok && !s.expired(l.expiresAt) {
		return false, nil
	}
	s.locks[key] = lockEntry{token: token, expiresAt: s.clock.Now().Add(ttl)}
	return true, nil
}

func (s *Store) ForceLock(_ context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks[key] = lockEntry{token: token, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *Store) Refresh(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok || l.token != token || s.expired(l.expiresAt) {
		return false, nil
	}
	l.expiresAt = s.clock.Now().Add(ttl)
	s.locks[key] = l
	return true, nil
}

func (s *Store) Unlock(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok || l.token != token {
		return false, nil
	}
	delete(s.locks, key)
	return !s.expired(l.expiresAt), nil
}

// --- SnapshotCache ---

func (s *Store) Get(_ context.Context, contestID string) (*domain.LeaderboardSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache[contestID]
	if !ok {
		return nil, nil
	}
	if s.expired(e.expiresAt) {
		delete(s.cache, contestID)
		return nil, nil
	}
	snapshot := e.snapshot
	return &snapshot, nil
}

func (s *Store) Generation(_ context.Context, contestID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gens[contestID], nil
}

func (s *Store) Set(_ context.Context, snapshot *domain.LeaderboardSnapshot, generation int64, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gens[snapshot.ContestID] != generation {
		return false, nil
	}
	s.cache[snapshot.ContestID] = cacheEntry{snapshot: *snapshot, expiresAt: s.clock.Now().Add(ttl)}
	return true, nil
}

func (s *Store) Delete(_ context.Context, contestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, contestID)
	s.gens[contestID]++
	return nil
}

// --- PendingQueue ---

func (s *Store) Push(_ context.Context, key string, item []byte, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[key]
	if !ok || s.expired(q.expiresAt) {
		q = &queueEntry{}
		s.queues[key] = q
	}
	q.items = append(q.items, append([]byte(nil), item...))
	q.expiresAt = s.clock.Now().Add(ttl)
	return int64(len(q.items)), nil
}

func (s *Store) Drain(_ context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[key]
	delete(s.queues, key)
	if !ok || s.expired(q.expiresAt) {
		return nil, nil
	}
	return q.items, nil
}

func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key, q := range s.queues {
		if s.expired(q.expiresAt) {
			delete(s.queues, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
