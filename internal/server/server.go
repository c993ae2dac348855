// Package server serves the marketing page and the endpoints that drive each
// visitor's contact form and gallery lightbox.
package server

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/dcmarble/stonesite/internal/config"
	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/gallery"
	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/dcmarble/stonesite/internal/session"
	"github.com/dcmarble/stonesite/internal/site"
	"github.com/dcmarble/stonesite/internal/version"
)

//go:embed static
var staticFiles embed.FS

// Options carries the components the server renders and drives.
type Options struct {
	Content  *site.Content
	Catalog  *gallery.Catalog
	Sessions *session.Store
	Logger   logging.Logger
}

// Server is the stonesite HTTP server.
type Server struct {
	config     *config.Config
	content    *site.Content
	catalog    *gallery.Catalog
	sessions   *session.Store
	limiter    *postLimiter
	proxies    []netip.Prefix
	logger     logging.Logger
	errHandler *errors.ErrorHandler

	httpServer   *http.Server
	closed       bool
	serverMutex  sync.Mutex
	shutdownOnce sync.Once
}

// New creates a server. Sessions is required; Content and Catalog default
// to the built-in page copy and gallery.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "server config is nil")
	}
	if opts.Sessions == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "session store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("server")

	content := opts.Content
	if content == nil {
		content = site.Default()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = gallery.NewCatalog(gallery.DefaultImages())
	}

	proxies, err := config.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		content:    content,
		catalog:    catalog,
		sessions:   opts.Sessions,
		proxies:    proxies,
		logger:     logger,
		errHandler: errors.NewErrorHandler(logger),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = newPostLimiter(cfg.RateLimit)
	}

	return s, nil
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /contact", s.handleContact)
	mux.HandleFunc("POST /api/contact", s.handleAPIContact)
	mux.HandleFunc("GET /gallery/open", s.handleGalleryOpen)
	mux.HandleFunc("GET /gallery/close", s.handleGalleryClose)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	if dir := s.catalog.Dir(); dir != "" {
		mux.Handle("GET "+gallery.URLPrefix, http.StripPrefix(gallery.URLPrefix, galleryFileServer(dir)))
	}

	return s.addMiddleware(mux)
}

// Start listens until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	if s.closed {
		s.serverMutex.Unlock()
		return nil
	}
	s.httpServer = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Server listening",
		"addr", server.Addr,
		"environment", s.config.Server.Environment,
		"gallery_images", s.catalog.Len())

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NewIOError(errors.ErrCodeInternalError, "server error", err)
	}
	return nil
}

// Shutdown gracefully stops the server. In-flight sends finish first: the
// contact handlers run on detached contexts and Shutdown waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.serverMutex.Lock()
		s.closed = true
		server := s.httpServer
		s.serverMutex.Unlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	if s.limiter != nil {
		handler = s.limitPosts(handler)
	}
	secured := s.guard(handler)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		secured.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "Request handled",
			"method", r.Method,
			"path", logging.SanitizeForLog(r.URL.Path),
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "healthy",
		"version":  version.GetVersion(),
		"visitors": s.sessions.Len(),
		"gallery":  s.catalog.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
