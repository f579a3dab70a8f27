package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/pscheid92/contestpulse/internal/platform/config"
)

type leaderboardService interface {
	Page(ctx context.Context, contestID string, page, pageSize int, forceRefresh bool) (domain.LeaderboardPage, error)
}

type ingestService interface {
	Record(ctx context.Context, source string, e *domain.SubmissionEvent) (int64, error)
	ExecutionResult(ctx context.Context, contestID, participantID string, result map[string]json.RawMessage) error
	EndContest(ctx context.Context, contestID string) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	leaderboard leaderboardService
	ingest      ingestService
	verifier    domain.TokenVerifier

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

// Deps are the collaborators the HTTP surface delegates to. HTTPMetrics and MetricsHandler may be nil.
type Deps struct {
	Leaderboard      leaderboardService
	Ingest           ingestService
	Verifier         domain.TokenVerifier
	WebSocketHandler http.Handler
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	HealthChecks     []HealthCheck
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		leaderboard:      deps.Leaderboard,
		ingest:           deps.Ingest,
		verifier:         deps.Verifier,
		websocketHandler: deps.WebSocketHandler,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		healthChecks:     deps.HealthChecks,
		startTime:        time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
