package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
)

func TestQueryName(t *testing.T) {
	assert.Equal(t, "SELECT", queryName("  select id FROM contests"))
	assert.Equal(t, "INSERT", queryName("\n\t\tINSERT INTO submission_events"))
	assert.Equal(t, "unknown", queryName("   "))
}

func TestMetricsTracer_RecordsErrors(t *testing.T) {
	set := metrics.NewSet(prometheus.NewRegistry())
	tracer := NewMetricsTracer(set.Database)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "DELETE FROM contests"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	assert.Equal(t, 0.0, testutil.ToFloat64(set.Database.QueryErrors.WithLabelValues("SELECT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(set.Database.QueryErrors.WithLabelValues("DELETE")))
}

func TestMetricsTracer_IgnoresUntrackedContext(t *testing.T) {
	set := metrics.NewSet(prometheus.NewRegistry())
	tracer := NewMetricsTracer(set.Database)

	assert.NotPanics(t, func() {
		tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{Err: errors.New("boom")})
	})
}
