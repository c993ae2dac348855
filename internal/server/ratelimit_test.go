package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dcmarble/stonesite/internal/config"
	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(perMinute, burst int) (*postLimiter, *time.Time) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	l := newPostLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute, Burst: burst})
	l.now = func() time.Time { return now }
	return l, &now
}

func TestPostLimiterBurstAndRefill(t *testing.T) {
	l, now := newTestLimiter(6, 2)

	_, ok := l.allow("1.2.3.4")
	assert.True(t, ok)
	_, ok = l.allow("1.2.3.4")
	assert.True(t, ok)

	wait, ok := l.allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, wait)

	_, ok = l.allow("5.6.7.8")
	assert.True(t, ok, "allowances are per client")

	*now = now.Add(9 * time.Second)
	wait, ok = l.allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	*now = now.Add(time.Second)
	_, ok = l.allow("1.2.3.4")
	assert.True(t, ok)
	_, ok = l.allow("1.2.3.4")
	assert.False(t, ok)

	// A long pause refills to the burst and no further.
	*now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		_, ok = l.allow("1.2.3.4")
		assert.True(t, ok)
	}
	_, ok = l.allow("1.2.3.4")
	assert.False(t, ok)
}

func TestPostLimiterPrunesIdleClients(t *testing.T) {
	l, now := newTestLimiter(10, 3)
	l.allow("a")
	l.allow("b")
	require.Len(t, l.clients, 2)

	*now = now.Add(idleClientTTL + time.Second)
	l.allow("b")
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "b")
}

func TestNewPostLimiterClampsConfig(t *testing.T) {
	l := newPostLimiter(config.RateLimitConfig{})
	assert.Equal(t, 1, l.burst)
	assert.Equal(t, time.Minute, l.interval)
}

func limitedServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	proxies, err := config.ParseTrustedProxies(cfg.Server.TrustedProxies)
	require.NoError(t, err)

	s := &Server{
		config:  cfg,
		limiter: newPostLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}),
		proxies: proxies,
		logger:  logging.NewNopLogger(),
	}
	return s.limitPosts(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestLimitPostsOnlyLimitsPosts(t *testing.T) {
	handler := limitedServer(t, testConfig())

	do := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/contact", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost).Code)
	rec := do(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, do(http.MethodGet).Code)
	}
}

func TestLimitPostsIgnoresForwardingHeadersFromUntrustedPeers(t *testing.T) {
	handler := limitedServer(t, testConfig())

	accepted := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/contact", nil)
		req.RemoteAddr = "198.51.100.9:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusNoContent {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestLimitPostsSeparatesClientsBehindTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	handler := limitedServer(t, cfg)

	post := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/contact", nil)
		req.RemoteAddr = "10.0.0.2:40000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post("203.0.113.1"))
	assert.Equal(t, http.StatusNoContent, post("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.1"))
	// A client cannot escape its bucket by prepending a fake hop.
	assert.Equal(t, http.StatusTooManyRequests, post("192.0.2.77, 203.0.113.2"))
}
