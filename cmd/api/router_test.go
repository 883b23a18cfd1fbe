package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensai/lensai/internal/cache"
	"github.com/lensai/lensai/internal/config"
	"github.com/lensai/lensai/internal/handler"
	"github.com/lensai/lensai/internal/metrics"
	"github.com/lensai/lensai/internal/model"
	"github.com/lensai/lensai/internal/repository"
)

const testKey = "lk_test_a1b2c3_0123456789abcdef0123456789abcdef"

type stubStore struct{}

func (stubStore) GetActiveAPIKeysByPrefix(context.Context, string) ([]*model.APIKey, error) {
	return nil, nil
}

func (stubStore) UpdateAPIKeyLastUsed(context.Context, string) error { return nil }

func (stubStore) GetProjectByID(_ context.Context, id string) (*model.Project, error) {
	if id != "p1" {
		return nil, repository.ErrProjectNotFound
	}
	return &model.Project{ID: "p1", Name: "Test Project"}, nil
}

func (stubStore) ListBudgetsByProject(context.Context, string) ([]*model.Budget, error) {
	return nil, nil
}

func (stubStore) CreateAPIKey(context.Context, *model.APIKey) error { return nil }

func (stubStore) GetAPIKeyByID(context.Context, string) (*model.APIKey, error) {
	return nil, repository.ErrAPIKeyNotFound
}

func (stubStore) ListAPIKeysByProject(context.Context, string) ([]*model.APIKey, error) {
	return nil, nil
}

func (stubStore) RevokeAPIKey(context.Context, string) error { return nil }

// stubCache resolves testKey to project p1 without hashing.
type stubCache struct{}

func (stubCache) GetAuthContext(context.Context, string) (*model.AuthContext, error) {
	return &model.AuthContext{KeyID: "k1", KeyPrefix: "a1b2c3", ProjectID: "p1"}, nil
}

func (stubCache) SetAuthContext(context.Context, string, *model.AuthContext) error { return nil }

func (stubCache) InvalidateKey(context.Context, string) error { return nil }

func (stubCache) CheckAPIRateLimit(context.Context, string, int, int) (*cache.RateLimitResult, error) {
	return &cache.RateLimitResult{Allowed: true, Remaining: 1}, nil
}

func (stubCache) CheckIPRateLimit(context.Context, string, int, int) (*cache.RateLimitResult, error) {
	return &cache.RateLimitResult{Allowed: true, Remaining: 1}, nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(context.Context, *model.UsageEvent) (string, error) {
	return "1-0", nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "development",
		AppHost:              "0.0.0.0",
		AppPort:              8000,
		CORSAllowedOrigins:   "http://localhost:3000",
		CORSAllowCredentials: true,
		RateLimitAPIEnabled:  true,
		RateLimitAPIRPM:      600,
		RateLimitAPIBurst:    50,
		MaxRequestBodySize:   1 << 20,
	}
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := metrics.NewPrometheus()

	return newRouter(routerDeps{
		cfg:       testConfig(),
		logger:    logger,
		root:      handler.New(),
		health:    handler.NewHealthHandler(nil, nil),
		projects:  handler.NewProjectHandler(stubStore{}, logger),
		apiKeys:   handler.NewAPIKeyHandler(logger, stubStore{}, stubCache{}, recorder, "test"),
		events:    handler.NewEventHandler(stubPublisher{}, nil, recorder, logger),
		keys:      stubStore{},
		authCache: stubCache{},
		limiter:   stubCache{},
		metrics:   recorder.Handler(),
	})
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RootAndHealth(t *testing.T) {
	r := testRouter(t)

	rec := do(t, r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"LensAI API","version":"1.0.0"}`, rec.Body.String())

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestRouter_ShellWithoutBackingServices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := newRouter(routerDeps{
		cfg:    testConfig(),
		logger: logger,
		root:   handler.New(),
		health: handler.NewHealthHandler(nil, nil),
	})

	rec := do(t, r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"LensAI API","version":"1.0.0"}`, rec.Body.String())

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, r, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/v1/projects/p1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := do(t, r, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	preflight := httptest.NewRequest(http.MethodOptions, "/health", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", "PATCH")
	preflight.Header.Set("Access-Control-Request-Headers", "X-Custom")
	rec = do(t, r, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Custom")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = do(t, r, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	r := testRouter(t)

	rec := do(t, r, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"resource not found"}`, rec.Body.String())

	rec = do(t, r, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"method not allowed"}`, rec.Body.String())
}

func TestRouter_ProjectRoutesRequireKey(t *testing.T) {
	r := testRouter(t)

	rec := do(t, r, httptest.NewRequest(http.MethodGet, "/v1/projects/p1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/p1", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec = do(t, r, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Test Project")

	// Another project's ID is hidden behind 404.
	req = httptest.NewRequest(http.MethodGet, "/v1/projects/p2/budgets", nil)
	req.Header.Set("X-API-Key", testKey)
	rec = do(t, r, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_EventsAndMetrics(t *testing.T) {
	r := testRouter(t)

	body := `{"ts":"2026-05-01T10:00:00Z","project_id":"p1","request_id":"r1","route":"/chat",
		"provider":"openai","model":"gpt-4o","tokens_in":1,"tokens_out":2,"cost_usd":0.1,"latency_ms":5,"status":"ok"}`
	rec := do(t, r, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok","stream_id":"1-0"}`, rec.Body.String())

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lensai_events_ingested_total{status="accepted"} 1`)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}
