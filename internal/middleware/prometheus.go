package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/metrics"
)

// PrometheusMiddleware records HTTP request metrics for Prometheus
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		path := sanitizePath(r.URL.Path)
		metrics.RecordHTTPRequest(r.Method, path, ww.Status(), duration)
	})
}

// RequestIDResponseMiddleware adds the request ID to response headers
func RequestIDResponseMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// sanitizePath collapses variable paths so metric label cardinality stays
// bounded.
func sanitizePath(path string) string {
	path = strings.TrimSuffix(path, "/")

	if strings.HasPrefix(path, "/api/v1/history/") {
		return "/api/v1/history/:name"
	}
	if strings.HasPrefix(path, "/api/v1/variables/") {
		return "/api/v1/variables/:name"
	}
	return path
}
