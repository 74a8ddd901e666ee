package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SearchQueriesTotal.WithLabelValues("ok").Inc()
	m.IndexGeneration.Set(42)
	m.CircuitBreakerState.WithLabelValues("redis-cache").Set(1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `search_queries_total{outcome="ok"} 1`)
	assert.Contains(t, body, "index_generation 42")
	assert.Contains(t, body, `circuit_breaker_state{name="redis-cache"} 1`)
}
