package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cargodesk/cargodesk/internal/observability"
	"github.com/cargodesk/cargodesk/internal/rbac"
	"github.com/cargodesk/cargodesk/jobs"
	_ "github.com/cargodesk/cargodesk/testing"
)

type denyAll struct{}

func (denyAll) Resolve(context.Context, int64) (rbac.PermissionSet, error) {
	return rbac.NewPermissionSet(nil), nil
}

func newTestAppRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test"}
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		RBACMiddleware: rbac.Middleware{Authorizer: denyAll{}, Logger: logger},
		JobHandler:     jobs.NewHandler(nil, "", logger),
		Metrics:        observability.NewMetrics(),
	})
}

func TestRouterHealthzSetsSecureHeaders(t *testing.T) {
	require.True(t, InTestMode())
	router := newTestAppRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Ratelimit-Limit"))
}

func TestRouterExposesMetricsAndJobsHealth(t *testing.T) {
	router := newTestAppRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `cargodesk_http_requests_total{code="200",method="GET",route="/jobs/health"} 1`), rec.Body.String())
}
