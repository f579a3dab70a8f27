package domain

import (
	"context"
	"time"
)

// Locker is a TTL-bounded distributed mutex keyed by name. The token identifies the
// owner so only the owner's Unlock or Refresh takes effect.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// ForceLock takes the key regardless of its current owner.
	ForceLock(ctx context.Context, key, token string, ttl time.Duration) error
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
}

// SnapshotCache stores computed leaderboards. Get returns (nil, nil) on a miss.
//
// Every Delete bumps the contest's generation. A builder reads Generation before
// computing and passes it to Set, which stores nothing (and reports false) once the
// generation has moved on, so a board computed before an invalidation never lands.
type SnapshotCache interface {
	Get(ctx context.Context, contestID string) (*LeaderboardSnapshot, error)
	Generation(ctx context.Context, contestID string) (int64, error)
	Set(ctx context.Context, snapshot *LeaderboardSnapshot, generation int64, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, contestID string) error
}

// PendingQueue is a durable ordered list per key with a TTL refreshed on every push.
type PendingQueue interface {
	// Push appends item and returns the queue depth after the append.
	Push(ctx context.Context, key string, item []byte, ttl time.Duration) (int64, error)
	// Drain atomically returns and removes every queued item.
	Drain(ctx context.Context, key string) ([][]byte, error)
	// Keys lists queue keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Bus is the shared cross-process broadcast channel.
type Bus interface {
	Publish(ctx context.Context, envelope Envelope) error
	// Subscribe delivers every envelope published by any process until ctx is done,
	// then closes the channel.
	Subscribe(ctx context.Context) (<-chan Envelope, error)
}
