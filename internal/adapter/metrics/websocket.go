package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics covers the connection registry and local delivery.
type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesDelivered *prometheus.CounterVec
	SlowClientEvicted prometheus.Counter
	DeadConnections   prometheus.Counter
	JoinsRejected     *prometheus.CounterVec
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of WebSocket connections held by this process.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_rooms",
			Help:      "Number of contest rooms with at least one local connection.",
		}),
		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_delivered_total",
			Help:      "Messages handed to local connections, by message type.",
		}, []string{"type"}),
		SlowClientEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Connections dropped because their send buffer was full.",
		}),
		DeadConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "dead_connections_terminated_total",
			Help:      "Room connections terminated for missing a liveness ping.",
		}),
		JoinsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "joins_rejected_total",
			Help:      "Join requests rejected, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.ActiveRooms, m.MessagesDelivered, m.SlowClientEvicted, m.DeadConnections, m.JoinsRejected)
	return m
}
