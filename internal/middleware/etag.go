package middleware

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ETagMiddleware provides ETag support for cacheable read endpoints. History
// buffers only change when a sample arrives, so pollers with a matching tag
// get a 304 instead of the full buffer payload.
type ETagMiddleware struct {
	logger *zap.Logger
}

// NewETagMiddleware creates a new ETag middleware
func NewETagMiddleware(logger *zap.Logger) *ETagMiddleware {
	return &ETagMiddleware{
		logger: logger,
	}
}

// Middleware returns the ETag middleware handler
func (em *ETagMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || em.shouldSkipETag(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Buffer the response so the 304 decision happens before any body
		// bytes reach the client.
		recorder := &etagResponseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if recorder.status == http.StatusOK && recorder.body.Len() > 0 {
			etag := em.calculateETag(recorder.body.Bytes())
			w.Header().Set("ETag", fmt.Sprintf(`"%s"`, etag))
			w.Header().Set("Cache-Control", "no-cache")

			if clientETag := r.Header.Get("If-None-Match"); clientETag != "" && em.etagMatches(clientETag, etag) {
				em.logger.Debug("ETag matched, serving 304",
					zap.String("path", r.URL.Path),
					zap.String("etag", etag),
					zap.String("request_id", middleware.GetReqID(r.Context())))
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		recorder.flushTo(w)
	})
}

// shouldSkipETag determines if ETag should be skipped for a path
func (em *ETagMiddleware) shouldSkipETag(path string) bool {
	// Skip for streaming and scrape endpoints
	skipPaths := []string{
		"/api/v1/stream",
		"/metrics",
		"/healthz",
		"/readyz",
	}
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// calculateETag calculates an ETag for the given content
func (em *ETagMiddleware) calculateETag(content []byte) string {
	hasher := md5.New()
	hasher.Write(content)
	return fmt.Sprintf("%x", hasher.Sum(nil))[:16] // Use first 16 chars for shorter ETags
}

// etagMatches checks if client ETag matches server ETag
func (em *ETagMiddleware) etagMatches(clientETag, serverETag string) bool {
	// Handle both quoted and unquoted ETags
	clientETag = strings.Trim(clientETag, `"`)
	serverETag = strings.Trim(serverETag, `"`)
	return clientETag == serverETag
}

// etagResponseRecorder buffers the response until the ETag decision is made.
type etagResponseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *etagResponseRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
}

func (r *etagResponseRecorder) Write(data []byte) (int, error) {
	return r.body.Write(data)
}

// flushTo replays the buffered response onto the real writer.
func (r *etagResponseRecorder) flushTo(w http.ResponseWriter) {
	w.WriteHeader(r.status)
	if r.body.Len() > 0 {
		w.Write(r.body.Bytes())
	}
}
