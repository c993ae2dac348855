package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"

	"github.com/dcmarble/stonesite/internal/config"
	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/logging"
)

// pagePolicy keeps every resource on the site's own origin. The contact form
// may only post back to it and the page cannot be framed.
var pagePolicy = []string{
	"default-src 'self'",
	"script-src 'self'",
	"style-src 'self'",
	"img-src 'self' data:",
	"connect-src 'self'",
	"object-src 'none'",
	"frame-ancestors 'none'",
	"base-uri 'self'",
	"form-action 'self'",
}

const hstsValue = "max-age=31536000; includeSubDomains"

// responseHeaders returns the headers set on every response.
func responseHeaders(cfg *config.Config) http.Header {
	policy := pagePolicy
	if !cfg.IsDevelopment() {
		policy = append(slices.Clone(policy), "upgrade-insecure-requests")
	}

	return http.Header{
		"Content-Security-Policy":    {strings.Join(policy, "; ")},
		"X-Frame-Options":            {"DENY"},
		"X-Content-Type-Options":     {"nosniff"},
		"Referrer-Policy":            {"strict-origin-when-cross-origin"},
		"Permissions-Policy":         {"camera=(), microphone=(), geolocation=(), payment=()"},
		"Cross-Origin-Opener-Policy": {"same-origin"},
	}
}

// guard sets the security headers and refuses state-changing requests that
// a browser sent on behalf of another site.
func (s *Server) guard(next http.Handler) http.Handler {
	headers := responseHeaders(s.config)
	hsts := !s.config.IsDevelopment()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range headers {
			h[k] = v
		}
		if hsts && s.secureRequest(r) {
			h.Set("Strict-Transport-Security", hstsValue)
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if origin := requestOrigin(r); origin != "" && !s.originAllowed(r, origin) {
				s.logger.Warn(r.Context(),
					errors.NewSecurityError(errors.ErrCodeInvalidOrigin, "cross-origin request rejected"),
					"Security: Invalid origin",
					"origin", logging.SanitizeForLog(origin),
					"ip", s.clientIP(r))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// secureRequest reports whether the visitor reached the site over HTTPS,
// either directly or through a proxy that terminates TLS.
func (s *Server) secureRequest(r *http.Request) bool {
	return r.TLS != nil || s.config.Server.SecureCookies
}

// requestOrigin is the Origin header, or the origin of the Referer when a
// browser left Origin out. Non-browser clients send neither and cannot ride
// a visitor's cookie, so an empty result is not a rejection.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

// originAllowed accepts the request's own host and the hosts of
// originPatterns. The opaque "null" origin is never allowed.
func (s *Server) originAllowed(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	return u.Host == r.Host || slices.Contains(s.originPatterns(), u.Host)
}

// checkOrigin gates the websocket upgrade, where an Origin is mandatory.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin != "" && s.originAllowed(r, origin)
}

// originPatterns lists the hosts accepted beyond the request host.
func (s *Server) originPatterns() []string {
	patterns := []string{
		s.config.Addr(),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
	for _, o := range s.config.Server.AllowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}

// clientIP identifies the caller for rate limiting and logs. The peer
// address is the client unless the peer is a configured trusted proxy; only
// then are X-Forwarded-For (walked right to left, skipping our own proxies)
// and X-Real-IP consulted.
func (s *Server) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}

	addr, err := netip.ParseAddr(peer)
	if err != nil || !s.trustedProxy(addr) {
		return peer
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return peer
			}
			if !s.trustedProxy(hop) {
				return hop.Unmap().String()
			}
		}
	}

	if real, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return real.Unmap().String()
	}
	return peer
}

func (s *Server) trustedProxy(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
