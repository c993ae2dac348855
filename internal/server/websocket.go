package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second
)

// handleWebSocket streams the visitor's contact snapshot: once on connect
// and again on every state change.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		s.errHandler.Handle(r.Context(), errors.NewSecurityError(errors.ErrCodeInvalidOrigin,
			"websocket origin rejected").WithContext("ip", s.clientIP(r)))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		http.Error(w, "No session", http.StatusBadRequest)
		return
	}
	v, ok := s.sessions.Get(cookie.Value)
	if !ok {
		http.Error(w, "Unknown session", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	updates, cancel := v.Subscribe()
	defer cancel()

	// The page never sends anything; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := writeSnapshot(ctx, conn, v.Contact.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "")
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(ctx, conn, snap)
}
