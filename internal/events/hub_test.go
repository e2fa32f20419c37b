package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/identity"
)

func TestHubPublishToRegisteredTab(t *testing.T) {
	hub := NewHub()
	feed := hub.Register("user123", "tab-1", nil)

	hub.Renderer("user123", "tab-1").TurnAppended(domain.UserTurn("hola"))

	select {
	case ev := <-feed:
		if ev.Type != TypeTurnAppended || ev.Turn == nil || ev.Turn.Content != "hola" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected queued event")
	}
}

func TestHubPublishWithoutFeedIsDropped(t *testing.T) {
	hub := NewHub()
	hub.Publish("nobody", "tab", Event{Type: TypeTurnAppended})
	if hub.Connected("nobody", "tab") {
		t.Fatal("no feed expected")
	}
}

func TestHubUnregisterKeepsOtherTabs(t *testing.T) {
	hub := NewHub()
	hub.Register("user123", "tab-1", nil)
	hub.Register("user123", "tab-2", nil)

	hub.Unregister("user123", "tab-1", nil)

	if hub.Connected("user123", "tab-1") {
		t.Fatal("tab-1 should be gone")
	}
	if !hub.Connected("user123", "tab-2") {
		t.Fatal("tab-2 should remain")
	}
}

func TestHubCloseSessionClosesFeed(t *testing.T) {
	hub := NewHub()
	feed := hub.Register("u", "tab", nil)
	hub.CloseSession("u", "tab")

	if _, ok := <-feed; ok {
		t.Fatal("expected feed to be closed")
	}
	// Publishing after close must not panic.
	hub.Publish("u", "tab", Event{Type: TypeTurnAppended})
}

func TestHubFullQueueDropsEvents(t *testing.T) {
	hub := NewHub()
	feed := hub.Register("u", "tab", nil)
	for i := 0; i < clientBuffer+5; i++ {
		hub.Publish("u", "tab", Event{Type: TypeTurnAppended})
	}
	if len(feed) != clientBuffer {
		t.Fatalf("expected queue capped at %d, got %d", clientBuffer, len(feed))
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Register("u", "tab-"+strconv.Itoa(i), nil)
		}
	}()
	for i := 0; i < 1000; i++ {
		hub.Publish("u", "tab-"+strconv.Itoa(i), Event{Type: TypeTurnAppended})
	}
	<-done
}

func TestHistoryReplacedEncodesEmptyArray(t *testing.T) {
	hub := NewHub()
	feed := hub.Register("u", "tab", nil)
	hub.Renderer("u", "tab").HistoryReplaced(nil)

	ev := <-feed
	if ev.History == nil || len(*ev.History) != 0 {
		t.Fatalf("expected empty, non-nil history, got %+v", ev)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	hub := NewHub()
	seed := domain.History{domain.UserTurn("q"), domain.AssistantTurn("a")}
	ws := NewWebSocketHandler(hub, func(context.Context, string, string) (domain.History, error) {
		return seed, nil
	}, "*", true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.WithIdentity(r.Context(), "user-1", r.URL.Query().Get("session_id"))
		ws.ServeHTTP(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/session?session_id=tab-1", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var first Event
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial event: %v", err)
	}
	if first.Type != TypeHistoryReplaced || first.History == nil || len(*first.History) != 2 {
		t.Fatalf("expected initial history_replaced with 2 turns, got %+v", first)
	}

	hub.Renderer("user-1", "tab-1").TurnAppended(domain.UserTurn("next"))
	var next Event
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read turn event: %v", err)
	}
	if next.Type != TypeTurnAppended || next.Turn == nil || next.Turn.Content != "next" {
		t.Fatalf("unexpected event %+v", next)
	}

	// Events for another tab of the same user are not delivered here.
	hub.Renderer("user-1", "tab-2").TurnAppended(domain.UserTurn("elsewhere"))
	hub.CloseSession("user-1", "tab-1")
	var none Event
	if err := wsjson.Read(ctx, conn, &none); err == nil {
		t.Fatalf("expected closed connection, got %+v", none)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ws := NewWebSocketHandler(NewHub(), nil, "https://videolearn.example", false)
	req := httptest.NewRequest(http.MethodGet, "/ws/session", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()

	ws.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
