package domain

import "strings"

// Coordination-store key namespace shared by every process.
const (
	BroadcastChannel    = "contest:broadcast"
	ReconcilerLeaderKey = "reconciler:leader"

	cacheKeyPrefix     = "leaderboard:cache:"
	buildLockKeyPrefix = "leaderboard:building:"
	generationPrefix   = "leaderboard:gen:"
)

func CacheKey(contestID string) string      { return cacheKeyPrefix + contestID }
func BuildLockKey(contestID string) string  { return buildLockKeyPrefix + contestID }
func GenerationKey(contestID string) string { return generationPrefix + contestID }

func ThrottleKey(kind, contestID string) string { return "throttle:" + kind + ":" + contestID }
func QueueKey(kind, contestID string) string    { return "queue:" + kind + ":" + contestID }
func QueuePattern(kind string) string           { return "queue:" + kind + ":*" }

// ContestFromQueueKey extracts the contest id from a key produced by QueueKey.
func ContestFromQueueKey(kind, key string) (string, bool) {
	id, ok := strings.CutPrefix(key, "queue:"+kind+":")
	return id, ok && id != ""
}
