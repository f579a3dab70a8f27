package metrics

import "github.com/prometheus/client_golang/prometheus"

type IngestMetrics struct {
	Events *prometheus.CounterVec
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Submission events received, by source (http, kafka) and result.",
		}, []string{"source", "result"}),
	}

	reg.MustRegister(m.Events)
	return m
}
