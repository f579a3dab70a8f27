package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/contestpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Owner-checked release and refresh. A plain DEL would let a process whose lock already
// expired delete the lock a peer acquired afterwards.
var (
	unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// Locker implements domain.Locker with SET NX PX.
type Locker struct {
	rdb goredis.Cmdable
}

var _ domain.Locker = (*Locker)(nil)

func NewLocker(rdb goredis.Cmdable) *Locker {
	return &Locker{rdb: rdb}
}

func (l *Locker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	_, err := l.rdb.SetArgs(ctx, key, token, goredis.SetArgs{TTL: ttl, Mode: "NX"}).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return true, nil
}

func (l *Locker) ForceLock(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := l.rdb.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to force lock %s: %w", key, err)
	}
	return nil
}

func (l *Locker) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.rdb, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock %s: %w", key, err)
	}
	return n == 1, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) (bool, error) {
	n, err := unlockScript.Run(ctx, l.rdb, []string{key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return n == 1, nil
}
