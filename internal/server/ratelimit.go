package server

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dcmarble/stonesite/internal/config"
	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/logging"
)

// idleClientTTL is how long a client's allowance outlives its last POST.
const idleClientTTL = 10 * time.Minute

// postLimiter gives every client a token bucket of burst POSTs that refills
// at one token per interval.
type postLimiter struct {
	mu        sync.Mutex
	clients   map[string]*allowance
	burst     int
	interval  time.Duration
	now       func() time.Time
	lastPrune time.Time
}

type allowance struct {
	tokens int
	since  time.Time // start of the interval currently being earned
	seen   time.Time
}

func newPostLimiter(cfg config.RateLimitConfig) *postLimiter {
	perMinute := max(cfg.RequestsPerMinute, 1)
	return &postLimiter{
		clients:  make(map[string]*allowance),
		burst:    max(cfg.Burst, 1),
		interval: time.Minute / time.Duration(perMinute),
		now:      time.Now,
	}
}

// allow spends one of key's tokens. When none is left it reports how long
// until the next one is earned.
func (l *postLimiter) allow(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) >= idleClientTTL/2 {
		l.prune(now)
	}

	a, ok := l.clients[key]
	if !ok {
		a = &allowance{tokens: l.burst, since: now}
		l.clients[key] = a
	}
	a.seen = now

	if earned := int(now.Sub(a.since) / l.interval); earned > 0 {
		a.tokens += earned
		a.since = a.since.Add(time.Duration(earned) * l.interval)
		if a.tokens >= l.burst {
			a.tokens = l.burst
			a.since = now
		}
	}

	if a.tokens == 0 {
		return l.interval - now.Sub(a.since), false
	}
	a.tokens--
	return 0, true
}

// prune drops clients that have been quiet for idleClientTTL.
func (l *postLimiter) prune(now time.Time) {
	for key, a := range l.clients {
		if now.Sub(a.seen) > idleClientTTL {
			delete(l.clients, key)
		}
	}
	l.lastPrune = now
}

// limitPosts applies the limiter to POST requests. Page views, assets and
// the websocket are never limited.
func (s *Server) limitPosts(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		ip := s.clientIP(r)
		wait, ok := s.limiter.allow(ip)
		if !ok {
			retry := max(int((wait+time.Second-1)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			s.logger.Warn(r.Context(),
				errors.NewSecurityError(errors.ErrCodeRateLimited, "rate limit exceeded"),
				"Rate limit exceeded",
				"client_ip", ip,
				"path", logging.SanitizeForLog(r.URL.Path))

			http.Error(w, fmt.Sprintf("Too many requests, retry in %ds", retry), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
