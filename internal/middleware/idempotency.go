package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// IdempotencyResult represents a cached response
type IdempotencyResult struct {
	StatusCode int
	Body       []byte
	Timestamp  time.Time
}

// IdempotencyMiddleware replays the recorded response for retried sample
// posts. A retry of an accepted post must not shift the ring buffers a
// second time, so clients send an X-Idempotency-Key and get the original
// response back.
type IdempotencyMiddleware struct {
	logger *zap.Logger
	cache  map[string]*IdempotencyResult
	mutex  sync.RWMutex
	ttl    time.Duration
}

// NewIdempotencyMiddleware creates a new idempotency middleware
func NewIdempotencyMiddleware(logger *zap.Logger, ttl time.Duration) *IdempotencyMiddleware {
	im := &IdempotencyMiddleware{
		logger: logger,
		cache:  make(map[string]*IdempotencyResult),
		ttl:    ttl,
	}

	go im.cleanup()

	return im
}

// Middleware returns the idempotency middleware handler
func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		idempotencyKey := r.Header.Get("X-Idempotency-Key")
		if idempotencyKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		cacheKey := im.generateCacheKey(r, idempotencyKey)

		if result := im.getCachedResult(cacheKey); result != nil {
			im.logger.Debug("Serving cached idempotent response",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("request_id", middleware.GetReqID(r.Context())))
			im.serveCachedResponse(w, result)
			return
		}

		recorder := &idempotencyRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			body:           bytes.NewBuffer(nil),
		}
		next.ServeHTTP(recorder, r)

		// Only successful posts are replayable; errors may be retried for real.
		if recorder.statusCode >= 200 && recorder.statusCode < 300 {
			im.cacheResult(cacheKey, &IdempotencyResult{
				StatusCode: recorder.statusCode,
				Body:       recorder.body.Bytes(),
				Timestamp:  time.Now(),
			})
		}
	})
}

func (im *IdempotencyMiddleware) generateCacheKey(r *http.Request, idempotencyKey string) string {
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%s:%s:%s", r.Method, r.URL.Path, idempotencyKey)))
	return hex.EncodeToString(hasher.Sum(nil))
}

// getCachedResult retrieves a cached result if it exists and is not expired
func (im *IdempotencyMiddleware) getCachedResult(cacheKey string) *IdempotencyResult {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result, exists := im.cache[cacheKey]
	if !exists {
		return nil
	}
	if time.Since(result.Timestamp) > im.ttl {
		// Expired entries are removed by the cleanup goroutine.
		return nil
	}
	return result
}

func (im *IdempotencyMiddleware) cacheResult(cacheKey string, result *IdempotencyResult) {
	im.mutex.Lock()
	defer im.mutex.Unlock()
	im.cache[cacheKey] = result
}

func (im *IdempotencyMiddleware) serveCachedResponse(w http.ResponseWriter, result *IdempotencyResult) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Cache", "HIT")
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

// cleanup periodically removes expired entries from the cache
func (im *IdempotencyMiddleware) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		im.mutex.Lock()
		for key, result := range im.cache {
			if now.Sub(result.Timestamp) > im.ttl {
				delete(im.cache, key)
			}
		}
		im.mutex.Unlock()
	}
}

// idempotencyRecorder captures the response for replay.
type idempotencyRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rr *idempotencyRecorder) WriteHeader(statusCode int) {
	rr.statusCode = statusCode
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *idempotencyRecorder) Write(data []byte) (int, error) {
	rr.body.Write(data)
	return rr.ResponseWriter.Write(data)
}
