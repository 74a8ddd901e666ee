// Package middleware holds the HTTP middleware wrapped around the search
// API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency, and
// in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			path := routeLabel(r.URL.Path)

			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()

			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// routeLabel bounds label cardinality: document IDs collapse into a
// template and unknown paths into "/other".
func routeLabel(path string) string {
	if strings.HasPrefix(path, documentsPrefix) && len(path) > len(documentsPrefix) {
		return documentsPrefix + "{id}"
	}
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "/other"
}

const documentsPrefix = "/api/v1/documents/"

var knownRoutes = map[string]struct{}{
	"/api/v1/search":           {},
	"/api/v1/suggest":          {},
	"/api/v1/reindex":          {},
	"/api/v1/stats":            {},
	"/api/v1/cache/stats":      {},
	"/api/v1/cache/invalidate": {},
	"/health/live":             {},
	"/health/ready":            {},
}
