package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestIdempotencyMiddleware(t *testing.T) {
	im := NewIdempotencyMiddleware(zaptest.NewLogger(t), time.Minute)
	calls := 0
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"accepted"}`))
	}))

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/variables/Dummy/out", nil)
		if key != "" {
			req.Header.Set("X-Idempotency-Key", key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := post("abc")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, w.Header().Get("X-Idempotency-Cache"))

	// Retry with the same key replays the recorded response.
	w = post("abc")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "HIT", w.Header().Get("X-Idempotency-Cache"))
	assert.Equal(t, `{"status":"accepted"}`, w.Body.String())

	// A different key is a new request.
	post("def")
	assert.Equal(t, 2, calls)
}

func TestIdempotencyMiddlewareWithoutKey(t *testing.T) {
	im := NewIdempotencyMiddleware(zaptest.NewLogger(t), time.Minute)
	calls := 0
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/variables/Dummy/out", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyMiddlewareSkipsErrors(t *testing.T) {
	im := NewIdempotencyMiddleware(zaptest.NewLogger(t), time.Minute)
	calls := 0
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/variables/Dummy/out", nil)
		req.Header.Set("X-Idempotency-Key", "abc")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	// Error responses are not replayed; the retry reaches the handler.
	assert.Equal(t, 2, calls)
}
