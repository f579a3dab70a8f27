package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pscheid92/contestpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 100

// PendingQueue implements domain.PendingQueue on Redis lists.
type PendingQueue struct {
	rdb goredis.Cmdable
}

var _ domain.PendingQueue = (*PendingQueue)(nil)

func NewPendingQueue(rdb goredis.Cmdable) *PendingQueue {
	return &PendingQueue{rdb: rdb}
}

// Push appends and refreshes the TTL in one MULTI so a queue never lives without expiry.
func (q *PendingQueue) Push(ctx context.Context, key string, item []byte, ttl time.Duration) (int64, error) {
	pipe := q.rdb.TxPipeline()
	push := pipe.RPush(ctx, key, item)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return push.Val(), nil
}

// Drain reads and deletes in one MULTI; concurrent drainers never see the same item twice.
func (q *PendingQueue) Drain(ctx context.Context, key string) ([][]byte, error) {
	pipe := q.rdb.TxPipeline()
	read := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to drain %s: %w", key, err)
	}

	vals := read.Val()
	items := make([][]byte, 0, len(vals))
	for _, v := range vals {
		items = append(items, []byte(v))
	}
	return items, nil
}

func (q *PendingQueue) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := q.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
