package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/gate"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , ,"))
	assert.Equal(t,
		[]string{"https://app.example.com", "https://staging.example.com"},
		ParseOrigins(" https://app.example.com, https://staging.example.com "))
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Config{AppEnv: "test", MaxDocumentKB: 512, RateLimitPerMin: 1000}
	srv := httpserver.NewServer(cfg,
		usecase.SubmitService{}, usecase.ResultService{},
		usecase.PaperService{}, usecase.ProviderService{},
		func(context.Context) error { return nil }, nil,
		func(context.Context) error { return nil },
	)
	return BuildRouter(cfg, srv)
}

func TestBuildRouter_HealthAndHeaders(t *testing.T) {
	t.Parallel()
	h := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Every response carries a request id and the security headers.
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestBuildRouter_MetricsExposed(t *testing.T) {
	t.Parallel()
	h := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBuildRouter_ReadyzWired(t *testing.T) {
	t.Parallel()
	h := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "db")
	assert.Contains(t, rec.Body.String(), "kafka")
}

func TestBuildRouter_UnknownRoute(t *testing.T) {
	t.Parallel()
	h := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildWorkerRouter(t *testing.T) {
	t.Parallel()
	g := gate.New(map[domain.Provider]gate.Quota{}, gate.BreakerConfig{
		FailureThreshold: 5, Cooldown: time.Minute, MaxProbes: 3,
	})
	admin := httpserver.NewGateAdmin(g, "")

	healthy := true
	h := BuildWorkerRouter(admin, func() bool { return healthy })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Gate reads are mounted on the operational listener.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.ProviderOpenAI))

	// Writes stay locked without a configured token hash.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/providers/openai/reset", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
