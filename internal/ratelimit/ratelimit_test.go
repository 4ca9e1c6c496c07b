package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/madukaneranga/Kixora-sub000/internal/ratelimit"
)

func newLimiter(t *testing.T) (ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.Limiter{Client: client, Prefix: "rl:test:"}, mr
}

func TestAllowWithinLimit(t *testing.T) {
	limiter, _ := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, _, err := limiter.Allow(ctx, "client-a", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "client-a", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	// another client keeps its own window
	allowed, _, _, err = limiter.Allow(ctx, "client-b", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestAllowUnconfiguredIsOpen(t *testing.T) {
	allowed, _, _, err := ratelimit.Limiter{}.Allow(context.Background(), "x", time.Minute, 5)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMiddleware(t *testing.T) {
	limiter, _ := newLimiter(t)
	h := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{
			Key:    func(*http.Request) string { return "shared" },
			Window: time.Minute,
			Max:    2,
		},
	}
	hits := 0
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, 2, hits)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close() // simulate an outage

	var reported error
	h := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: client, Prefix: "rl:test:"},
		Config: ratelimit.Config{
			Key:    func(*http.Request) string { return "shared" },
			Window: time.Minute,
			Max:    1,
		},
		OnError: func(err error) { reported = err },
	}
	hits := 0
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, hits)
	require.Error(t, reported)
}
