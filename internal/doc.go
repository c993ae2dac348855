// Package internal holds the implementation packages for stonesite.
//
// # Package Organization
//
//   - config: viper-backed configuration with defaults and validation
//   - contact: contact form state machine and submission controller
//   - emailjs: HTTP client for the EmailJS send API
//   - errors: typed site errors and the shared error handler
//   - gallery: image catalog and lightbox selection
//   - logging: structured logging on log/slog
//   - server: HTTP routes, middleware and the WebSocket status stream
//   - session: per-visitor controller state keyed by cookie
//   - site: page copy with optional YAML overlay
//   - version: build metadata
//   - views: templ components for the landing page
//   - watcher: debounced file watching for the gallery directory
//
// # Request Flow
//
// The server resolves the visitor session from its cookie, applies the
// form post or lightbox action to that visitor's controllers, and renders
// the page from views. Status changes made by a send are pushed to any
// open WebSocket for the same visitor.
package internal
