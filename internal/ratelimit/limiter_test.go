package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow_WithinBudget(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 3, MaxKeys: 10})

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client-a"), "request %d should fit the burst", i)
	}
	assert.False(t, l.Allow("client-a"), "budget exhausted")
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1, MaxKeys: 10})

	assert.True(t, l.Allow("client-a"))
	assert.False(t, l.Allow("client-a"))
	assert.True(t, l.Allow("client-b"), "other clients keep their own budget")
}

func TestEviction(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1, MaxKeys: 2})

	l.Allow("a")
	l.Allow("b")
	l.Allow("c")
	assert.LessOrEqual(t, len(l.entries), 2)
}

func TestMiddleware(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1, MaxKeys: 10})
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}
