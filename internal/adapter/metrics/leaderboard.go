package metrics

import "github.com/prometheus/client_golang/prometheus"

// LeaderboardMetrics covers the snapshot cache and the aggregator.
type LeaderboardMetrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	Invalidations prometheus.Counter
	Degraded      *prometheus.CounterVec
	Excluded      prometheus.Counter
}

func NewLeaderboardMetrics(reg prometheus.Registerer) *LeaderboardMetrics {
	m := &LeaderboardMetrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "cache_hits_total",
			Help:      "Snapshot reads served from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "cache_misses_total",
			Help:      "Snapshot reads that missed the cache.",
		}),
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "builds_total",
			Help:      "Cache-miss outcomes: built, superseded (invalidated mid-build), contended (another process builds) or uncached.",
		}, []string{"outcome"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "build_duration_seconds",
			Help:      "Duration of standings computation in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "invalidations_total",
			Help:      "Explicit cache invalidations.",
		}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "degraded_total",
			Help:      "Coordination-store failures absorbed by the cache, by operation.",
		}, []string{"operation"}),
		Excluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "participants_excluded_total",
			Help:      "Participants left out of a snapshot because of malformed events.",
		}),
	}

	reg.MustRegister(m.CacheHits, m.CacheMisses, m.Builds, m.BuildDuration, m.Invalidations, m.Degraded, m.Excluded)
	return m
}
