package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contestpulse"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Set bundles every metric family the service exports.
type Set struct {
	HTTP        *HTTPMetrics
	WebSocket   *WebSocketMetrics
	Leaderboard *LeaderboardMetrics
	Throttle    *ThrottleMetrics
	Redis       *RedisMetrics
	Database    *DatabaseMetrics
	Ingest      *IngestMetrics
}

func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		HTTP:        NewHTTPMetrics(reg),
		WebSocket:   NewWebSocketMetrics(reg),
		Leaderboard: NewLeaderboardMetrics(reg),
		Throttle:    NewThrottleMetrics(reg),
		Redis:       NewRedisMetrics(reg),
		Database:    NewDatabaseMetrics(reg),
		Ingest:      NewIngestMetrics(reg),
	}
}
