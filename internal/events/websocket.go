package events

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/identity"
)

const writeTimeout = 5 * time.Second

// HistoryFunc returns the current history of a tab, restoring it if needed.
type HistoryFunc func(ctx context.Context, userID, sessionID string) (domain.History, error)

// WebSocketHandler streams render events of the caller's tab.
type WebSocketHandler struct {
	hub           *Hub
	history       HistoryFunc
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, history HistoryFunc, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		history:       history,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	feed := h.hub.Register(userID, sessionID, ws)
	defer h.hub.Unregister(userID, sessionID, ws)

	// The widget only listens; reading is needed to observe close frames.
	ctx := ws.CloseRead(r.Context())

	if h.history != nil {
		history, err := h.history(ctx, userID, sessionID)
		if err != nil {
			slog.Warn("Failed to load history for render feed", "error", err, "user_id", userID, "session_id", sessionID)
		} else {
			h.hub.Renderer(userID, sessionID).HistoryReplaced(history)
		}
	}

	for {
		select {
		case ev, ok := <-feed:
			if !ok {
				return
			}
			if err := h.write(ctx, ws, ev); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		case <-ctx.Done():
			slog.Debug("WebSocket closed by client", "user_id", userID, "session_id", sessionID)
			return
		}
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
