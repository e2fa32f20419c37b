// Package events pushes session render events to browser tabs over websockets.
package events

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/videolearn/internal/domain"
)

// Event types sent to the widget.
const (
	TypeTurnAppended    = "turn_appended"
	TypeHistoryReplaced = "history_replaced"
)

// Event is one websocket message.
type Event struct {
	Type    string          `json:"type"`
	Turn    *domain.Turn    `json:"turn,omitempty"`
	History *domain.History `json:"history,omitempty"`
}

const clientBuffer = 32

type client struct {
	conn *websocket.Conn
	send chan Event
	once sync.Once
}

func (c *client) close(reason string) {
	c.once.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, reason)
		}
	})
}

// Hub tracks one websocket per user tab.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]map[string]*client)}
}

// Register attaches conn to a tab and returns the queue feeding it.
// A previous connection for the same tab is closed.
func (h *Hub) Register(userID, sessionID string, conn *websocket.Conn) <-chan Event {
	c := &client{conn: conn, send: make(chan Event, clientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*client)
	}
	if existing, exists := h.active[userID][sessionID]; exists && existing.conn != conn {
		existing.close("session replaced")
	}
	h.active[userID][sessionID] = c
	slog.Info("Render feed registered", "user_id", userID, "session_id", sessionID)
	return c.send
}

// Unregister detaches conn if it is still the tab's current connection.
func (h *Hub) Unregister(userID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current.conn == conn {
			current.close("session ended")
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, userID)
			}
			slog.Info("Render feed unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseSession closes the feed of one tab.
func (h *Hub) CloseSession(userID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[userID]
	if !ok {
		return
	}
	if c, exists := sessions[sessionID]; exists {
		c.close("session closed")
		delete(sessions, sessionID)
		slog.Info("Render feed closed", "user_id", userID, "session_id", sessionID)
	}
	if len(sessions) == 0 {
		delete(h.active, userID)
	}
}

// Connected reports whether a tab has a live feed.
func (h *Hub) Connected(userID, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.active[userID][sessionID]
	return ok
}

// Publish queues ev for a tab. Events for tabs without a feed are dropped,
// as are events for a feed whose queue is full.
func (h *Hub) Publish(userID, sessionID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.active[userID][sessionID]
	if !ok {
		return
	}
	select {
	case c.send <- ev:
	default:
		slog.Warn("Render feed queue full, dropping event",
			"user_id", userID, "session_id", sessionID, "type", ev.Type)
	}
}

// Renderer returns a session renderer that publishes to one tab.
func (h *Hub) Renderer(userID, sessionID string) *TabRenderer {
	return &TabRenderer{hub: h, userID: userID, sessionID: sessionID}
}

// TabRenderer forwards render events of one session to its feed.
type TabRenderer struct {
	hub       *Hub
	userID    string
	sessionID string
}

func (r *TabRenderer) TurnAppended(turn domain.Turn) {
	r.hub.Publish(r.userID, r.sessionID, Event{Type: TypeTurnAppended, Turn: &turn})
}

func (r *TabRenderer) HistoryReplaced(history domain.History) {
	if history == nil {
		history = domain.History{}
	}
	r.hub.Publish(r.userID, r.sessionID, Event{Type: TypeHistoryReplaced, History: &history})
}
