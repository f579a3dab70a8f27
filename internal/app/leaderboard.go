package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
	"golang.org/x/sync/singleflight"
)

const unlockTimeout = 2 * time.Second

// StandingsComputer is satisfied by Aggregator.
type StandingsComputer interface {
	ComputeStandings(ctx context.Context, contestID string) (*domain.LeaderboardSnapshot, error)
}

type LeaderboardConfig struct {
	CacheTTL     time.Duration
	BuildLockTTL time.Duration
	InstanceID   string
}

// Leaderboard serves cached snapshots. A miss is built by at most one process at a time
// (build lock) and one goroutine per process (singleflight); other processes get a pending
// snapshot instead of waiting.
type Leaderboard struct {
	computer StandingsComputer
	cache    domain.SnapshotCache
	locker   domain.Locker
	cfg      LeaderboardConfig
	clock    clockwork.Clock
	metrics  *metrics.LeaderboardMetrics
	builds   singleflight.Group
}

func NewLeaderboard(computer StandingsComputer, cache domain.SnapshotCache, locker domain.Locker, cfg LeaderboardConfig, clock clockwork.Clock, m *metrics.LeaderboardMetrics) *Leaderboard {
	return &Leaderboard{
		computer: computer,
		cache:    cache,
		locker:   locker,
		cfg:      cfg,
		clock:    clock,
		metrics:  m,
	}
}

func (l *Leaderboard) Snapshot(ctx context.Context, contestID string, forceRefresh bool) (*domain.LeaderboardSnapshot, error) {
	if !forceRefresh {
		snap, err := l.cache.Get(ctx, contestID)
		if err != nil {
			slog.WarnContext(ctx, "Leaderboard cache read failed, computing uncached", "contest_id", contestID, "error", err)
			l.metrics.Degraded.WithLabelValues("cache_get").Inc()
			return l.computeUncached(ctx, contestID)
		}
		if snap != nil {
			l.metrics.CacheHits.Inc()
			return snap, nil
		}
		l.metrics.CacheMisses.Inc()
	}

	// The shared build outlives any one caller; each caller only stops waiting.
	ch := l.builds.DoChan(contestID, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.BuildLockTTL)
		defer cancel()
		return l.build(buildCtx, contestID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.LeaderboardSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Leaderboard) Page(ctx context.Context, contestID string, page, pageSize int, forceRefresh bool) (domain.LeaderboardPage, error) {
	snap, err := l.Snapshot(ctx, contestID, forceRefresh)
	if err != nil {
		return domain.LeaderboardPage{}, err
	}
	return snap.Paginate(page, pageSize), nil
}

func (l *Leaderboard) Invalidate(ctx context.Context, contestID string) error {
	l.metrics.Invalidations.Inc()
	if err := l.cache.Delete(ctx, contestID); err != nil {
		l.metrics.Degraded.WithLabelValues("cache_delete").Inc()
		return err
	}
	return nil
}

func (l *Leaderboard) build(ctx context.Context, contestID string) (*domain.LeaderboardSnapshot, error) {
	key := domain.BuildLockKey(contestID)
	token := ownerToken(l.cfg.InstanceID)

	acquired, err := l.locker.TryLock(ctx, key, token, l.cfg.BuildLockTTL)
	if err != nil {
		slog.WarnContext(ctx, "Build lock unavailable, computing uncached", "contest_id", contestID, "error", err)
		l.metrics.Degraded.WithLabelValues("build_lock").Inc()
		return l.computeUncached(ctx, contestID)
	}

	if !acquired {
		// Another process is building. Serve its result if it already landed.
		if snap, err := l.cache.Get(ctx, contestID); err == nil && snap != nil {
			return snap, nil
		}
		l.metrics.Builds.WithLabelValues("contended").Inc()
		slog.DebugContext(ctx, "Leaderboard build in progress elsewhere", "contest_id", contestID)
		return &domain.LeaderboardSnapshot{
			ContestID:   contestID,
			GeneratedAt: l.clock.Now().UTC(),
			Entries:     []domain.StandingsEntry{},
			Pending:     true,
		}, nil
	}

	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		if _, err := l.locker.Unlock(unlockCtx, key, token); err != nil {
			slog.WarnContext(ctx, "Failed to release build lock", "contest_id", contestID, "error", err)
		}
	}()

	generation, err := l.cache.Generation(ctx, contestID)
	if err != nil {
		slog.WarnContext(ctx, "Leaderboard generation unavailable, computing uncached", "contest_id", contestID, "error", err)
		l.metrics.Degraded.WithLabelValues("cache_generation").Inc()
		return l.computeUncached(ctx, contestID)
	}

	snap, err := l.computer.ComputeStandings(ctx, contestID)
	if err != nil {
		return nil, err
	}

	stored, err := l.cache.Set(ctx, snap, generation, l.cfg.CacheTTL)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "Failed to cache leaderboard", "contest_id", contestID, "error", err)
		l.metrics.Degraded.WithLabelValues("cache_set").Inc()
	case !stored:
		// Invalidated mid-build: the board may predate the event that invalidated it.
		slog.DebugContext(ctx, "Leaderboard invalidated during build, not caching", "contest_id", contestID)
		l.metrics.Builds.WithLabelValues("superseded").Inc()
		return snap, nil
	}
	l.metrics.Builds.WithLabelValues("built").Inc()
	return snap, nil
}

func (l *Leaderboard) computeUncached(ctx context.Context, contestID string) (*domain.LeaderboardSnapshot, error) {
	l.metrics.Builds.WithLabelValues("uncached").Inc()
	return l.computer.ComputeStandings(ctx, contestID)
}
