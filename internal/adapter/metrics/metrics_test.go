package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSet_RegistersOnce(t *testing.T) {
	reg := NewRegistry()
	set := NewSet(reg)
	require.NotNil(t, set.Leaderboard)

	assert.Panics(t, func() { NewSet(reg) }, "duplicate registration must panic")
}

func TestHTTPMiddleware_RecordsRoutes(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/contests/:contestID/leaderboard", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health/live", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, path := range []string{"/api/contests/c1/leaderboard", "/api/contests/c2/leaderboard", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/contests/:contestID/leaderboard", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal), "health checks are not recorded")
}

func TestHTTPMiddleware_ObservesDuration(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.POST("/api/contests/:contestID/events", func(c echo.Context) error {
		return c.NoContent(http.StatusAccepted)
	})

	for range 3 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/contests/c1/events", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	assert.Equal(t, 3, histogramSampleCount(t, m.RequestDuration, "POST", "/api/contests/:contestID/events", "202"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}

func histogramSampleCount(t *testing.T, vec *prometheus.HistogramVec, labels ...string) int {
	t.Helper()
	observer, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	metric, ok := observer.(prometheus.Metric)
	require.True(t, ok)

	out := &dto.Metric{}
	require.NoError(t, metric.Write(out))
	return int(out.GetHistogram().GetSampleCount())
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	set := NewSet(reg)
	set.Leaderboard.CacheHits.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "contestpulse_leaderboard_cache_hits_total 1"))
}
