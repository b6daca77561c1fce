package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(t *testing.T, cfg RateLimitConfig) http.Handler {
	t.Helper()
	return Principal("X-Remote-User", "")(RateLimiter(t.Context(), cfg)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))
}

func call(h http.Handler, user, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notebook/api/check_status", nil)
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	h := limitedHandler(t, RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2})

	for range 2 {
		rec := call(h, "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := call(h, "alice", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.InDelta(t, float64(-1), body["status"], 0.001)
	assert.Contains(t, body["message"], "rate limit exceeded")
}

func TestRateLimiter_KeyedByPrincipal(t *testing.T) {
	h := limitedHandler(t, RateLimitConfig{RequestsPerSecond: 0.1, Burst: 1})

	// Same address, different users.
	assert.Equal(t, http.StatusOK, call(h, "alice", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, call(h, "bob", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(h, "alice", "10.0.0.2:2000").Code)
}

func TestRateLimiterKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "addr:192.0.2.7", limiterKey(req))

	req.RemoteAddr = "not-a-host-port"
	assert.Equal(t, "addr:not-a-host-port", limiterKey(req))

	req = req.WithContext(WithPrincipal(req.Context(), "alice"))
	assert.Equal(t, "user:alice", limiterKey(req))
}

func TestLimiterSet_Sweep(t *testing.T) {
	set := &limiterSet{
		cfg:     RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute},
		buckets: map[string]*bucket{},
	}
	now := time.Now()
	first := set.get("user:old", now.Add(-2*time.Minute))
	set.get("user:new", now)

	assert.Equal(t, 1, set.sweep(now))
	assert.Len(t, set.buckets, 1)
	assert.NotSame(t, first, set.get("user:old", now), "swept bucket starts fresh")
}
