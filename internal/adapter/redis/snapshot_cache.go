package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pscheid92/contestpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// generationTTL bounds leaderboard:gen:<contestId> well past any build.
const generationTTL = 24 * time.Hour

// setIfGenerationScript writes the snapshot only while the generation still matches.
// KEYS[1] = cache key, KEYS[2] = generation key
// ARGV[1] = expected generation, ARGV[2] = payload, ARGV[3] = ttl in ms
var setIfGenerationScript = goredis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// SnapshotCache stores leaderboard snapshots as JSON under leaderboard:cache:<contestId>,
// guarded by a counter under leaderboard:gen:<contestId>.
type SnapshotCache struct {
	rdb goredis.Cmdable
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(rdb goredis.Cmdable) *SnapshotCache {
	return &SnapshotCache{rdb: rdb}
}

func (c *SnapshotCache) Get(ctx context.Context, contestID string) (*domain.LeaderboardSnapshot, error) {
	data, err := c.rdb.Get(ctx, domain.CacheKey(contestID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached leaderboard: %w", err)
	}

	var snapshot domain.LeaderboardSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode cached leaderboard: %w", err)
	}
	return &snapshot, nil
}

func (c *SnapshotCache) Generation(ctx context.Context, contestID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, domain.GenerationKey(contestID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read leaderboard generation: %w", err)
	}
	return gen, nil
}

func (c *SnapshotCache) Set(ctx context.Context, snapshot *domain.LeaderboardSnapshot, generation int64, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to encode leaderboard: %w", err)
	}

	keys := []string{domain.CacheKey(snapshot.ContestID), domain.GenerationKey(snapshot.ContestID)}
	stored, err := setIfGenerationScript.Run(ctx, c.rdb, keys, strconv.FormatInt(generation, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cache leaderboard: %w", err)
	}
	return stored == 1, nil
}

// Delete drops the cached snapshot and bumps the generation in one transaction.
func (c *SnapshotCache) Delete(ctx context.Context, contestID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, domain.CacheKey(contestID))
	pipe.Incr(ctx, domain.GenerationKey(contestID))
	pipe.Expire(ctx, domain.GenerationKey(contestID), generationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate leaderboard: %w", err)
	}
	return nil
}
