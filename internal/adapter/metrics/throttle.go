package metrics

import "github.com/prometheus/client_golang/prometheus"

// ThrottleMetrics covers the distributed debounce and the broadcast relay.
type ThrottleMetrics struct {
	Notifications *prometheus.CounterVec
	Flushes       *prometheus.CounterVec
	FlushedEvents *prometheus.CounterVec
	Published     *prometheus.CounterVec
}

func NewThrottleMetrics(reg prometheus.Registerer) *ThrottleMetrics {
	m := &ThrottleMetrics{
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "notifications_total",
			Help:      "Events offered to a debouncer, by kind.",
		}, []string{"kind"}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "flushes_total",
			Help:      "Debounced emissions, by kind and trigger (timer, force, reconcile, fallback).",
		}, []string{"kind", "trigger"}),
		FlushedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "flushed_events_total",
			Help:      "Queued events folded into emissions, by kind.",
		}, []string{"kind"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Relay publishes, by result (ok, local_fallback).",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Notifications, m.Flushes, m.FlushedEvents, m.Published)
	return m
}
