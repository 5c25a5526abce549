package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	metrics.Jobs().Skipped("interest:bill")
	_ = metrics.Jobs().Track("ledger:process-pending").End(errors.New("boom"))

	body := scrape(t, metrics)
	require.Contains(t, body, `treasury_jobs_skipped_total{job="interest:bill"} 1`)
	require.Contains(t, body, `treasury_jobs_failures_total{job="ledger:process-pending"} 1`)
	require.Contains(t, body, "go_goroutines")
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/allowances/{id}/return")
	req := httptest.NewRequest(http.MethodPost, "/api/allowances/7/return", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `treasury_http_requests_total{code="409",route="/api/allowances/{id}/return"} 1`)
	require.Contains(t, body, `treasury_http_request_duration_seconds_bucket{route="/api/allowances/{id}/return"`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	require.Nil(t, metrics.Jobs())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, metrics.Middleware(next))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
