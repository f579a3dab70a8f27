package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/contestpulse/internal/adapter/auth"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/pscheid92/contestpulse/internal/platform/config"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

// --- Mock implementations ---

type mockLeaderboard struct {
	pageFn func(ctx context.Context, contestID string, page, pageSize int, forceRefresh bool) (domain.LeaderboardPage, error)
}

func (m *mockLeaderboard) Page(ctx context.Context, contestID string, page, pageSize int, forceRefresh bool) (domain.LeaderboardPage, error) {
	if m.pageFn != nil {
		return m.pageFn(ctx, contestID, page, pageSize, forceRefresh)
	}
	return domain.LeaderboardPage{}, errors.New("not implemented")
}

type executionCall struct {
	contestID     string
	participantID string
	result        map[string]json.RawMessage
}

type mockIngest struct {
	mu         sync.Mutex
	recordErr  error
	resultErr  error
	endErr     error
	recorded   []*domain.SubmissionEvent
	sources    []string
	executions []executionCall
	ended      []string
}

func (m *mockIngest) Record(_ context.Context, source string, e *domain.SubmissionEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return 0, m.recordErr
	}
	m.recorded = append(m.recorded, e)
	m.sources = append(m.sources, source)
	return int64(len(m.recorded)), nil
}

func (m *mockIngest) ExecutionResult(_ context.Context, contestID, participantID string, result map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resultErr != nil {
		return m.resultErr
	}
	if participantID == "" {
		return domain.ErrInvalidEvent
	}
	m.executions = append(m.executions, executionCall{contestID, participantID, result})
	return nil
}

func (m *mockIngest) EndContest(_ context.Context, contestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endErr != nil {
		return m.endErr
	}
	m.ended = append(m.ended, contestID)
	return nil
}

// --- Fixture ---

type testEnv struct {
	server *Server
	tokens *auth.JWT
	ingest *mockIngest
	board  *mockLeaderboard
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()

	tokens := auth.NewJWT(testSecret, clockwork.NewRealClock())
	ingest := &mockIngest{}
	board := &mockLeaderboard{}

	deps := Deps{
		Leaderboard:  board,
		Ingest:       ingest,
		Verifier:     tokens,
		HTTPMetrics:  metrics.NewHTTPMetrics(prometheus.NewRegistry()),
		HealthChecks: nil,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	cfg := &config.Config{AppEnv: "test", Port: "0"}
	return &testEnv{server: NewServer(cfg, deps), tokens: tokens, ingest: ingest, board: board}
}

func withHealthChecks(checks ...HealthCheck) func(*Deps) {
	return func(d *Deps) {
		d.HealthChecks = checks
	}
}

func withWebSocketHandler(h http.Handler) func(*Deps) {
	return func(d *Deps) {
		d.WebSocketHandler = h
	}
}

func withMetricsHandler(h http.Handler) func(*Deps) {
	return func(d *Deps) {
		d.MetricsHandler = h
	}
}

func (env *testEnv) token(t *testing.T, id domain.Identity) string {
	t.Helper()
	token, err := env.tokens.Issue(id, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request through the full middleware chain. An empty token sends no Authorization header.
func (env *testEnv) do(t *testing.T, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

var (
	participant = domain.Identity{ParticipantID: "u1", Role: domain.RoleParticipant}
	service     = domain.Identity{Role: domain.RoleService}
	admin       = domain.Identity{ParticipantID: "root", Role: domain.RoleAdmin}
)
