package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/ratelimit"
)

func TestNoopLimiterNeverBlocksMiddleware(t *testing.T) {
	var limiter ratelimit.NoopLimiter
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	mw := ratelimit.Middleware(limiter, ratelimit.IPKeyFunc)(next)

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/anything", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		mw.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, called)
}

func TestMemoryLimiterMiddlewareReturns429AfterBurst(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer limiter.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := ratelimit.Middleware(limiter, ratelimit.IPKeyFunc)(next)

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/threads/x/messages", nil)
		req.RemoteAddr = "10.0.0.2:6666"
		return req
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, newReq())
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, newReq())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMemoryLimiterMiddlewareKeysByClientIP(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer limiter.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := ratelimit.Middleware(limiter, ratelimit.IPKeyFunc)(next)

	req1 := httptest.NewRequest(http.MethodPost, "/x", nil)
	req1.RemoteAddr = "10.0.0.3:1111"
	rec1 := httptest.NewRecorder()
	mw.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	// Same IP again: burst of 1 already spent.
	rec2 := httptest.NewRecorder()
	mw.ServeHTTP(rec2, req1)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)

	// Different IP: independent bucket.
	req2 := httptest.NewRequest(http.MethodPost, "/x", nil)
	req2.RemoteAddr = "10.0.0.4:2222"
	rec3 := httptest.NewRecorder()
	mw.ServeHTTP(rec3, req2)
	assert.Equal(t, http.StatusOK, rec3.Code)
}

func TestIPKeyFuncStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "192.168.1.1:54321"
	assert.Equal(t, "192.168.1.1", ratelimit.IPKeyFunc(req))
}
