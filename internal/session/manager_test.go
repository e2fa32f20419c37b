package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/videolearn/internal/composer"
	"github.com/ashureev/videolearn/internal/conversation"
	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/preset"
	"github.com/ashureev/videolearn/internal/store"
	"github.com/ashureev/videolearn/internal/transcript"
	"github.com/ashureev/videolearn/internal/transport"
)

type fakeTransport struct {
	mu       sync.Mutex
	requests []domain.OutboundRequest
	reply    func(n int, req domain.OutboundRequest) (domain.ChatReply, error)
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeTransport) Send(_ context.Context, req domain.OutboundRequest) (domain.ChatReply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.reply != nil {
		return f.reply(n, req)
	}
	return textReply("answer"), nil
}

func (f *fakeTransport) last() domain.OutboundRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func textReply(text string) domain.ChatReply {
	return domain.ChatReply{Content: []domain.ContentBlock{{Type: "text", Text: text}}}
}

type fakeFetcher struct {
	payload domain.TranscriptionPayload
	err     error
}

func (f fakeFetcher) FetchTranscription(context.Context) (domain.TranscriptionPayload, error) {
	return f.payload, f.err
}

type renderEvent struct {
	replaced bool
	turn     domain.Turn
	history  domain.History
}

type recordingRenderer struct {
	mu     sync.Mutex
	events []renderEvent
}

func (r *recordingRenderer) TurnAppended(turn domain.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, renderEvent{turn: turn})
}

func (r *recordingRenderer) HistoryReplaced(history domain.History) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, renderEvent{replaced: true, history: history})
}

func (r *recordingRenderer) snapshot() []renderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderEvent(nil), r.events...)
}

type harness struct {
	mgr      *Manager
	kv       *store.MemoryStore
	renderer *recordingRenderer
}

func newHarness(t *testing.T, fetcher transcript.Fetcher, tr Transport, kv *store.MemoryStore) harness {
	t.Helper()
	if kv == nil {
		kv = store.NewMemory()
	}
	bucket := store.NewBucket(kv, "user-1:tab-1")
	p := preset.Default()
	r := &recordingRenderer{}
	mgr := NewManager(Config{
		UserID:       "user-1",
		SessionID:    "tab-1",
		Conversation: conversation.NewStore(bucket, nil),
		Transcript:   transcript.NewSource(fetcher, bucket, nil),
		Composer:     composer.New(p, "", 0),
		Transport:    tr,
		Renderer:     r,
		Welcome:      p.Welcome,
	})
	return harness{mgr: mgr, kv: kv, renderer: r}
}

func restored(t *testing.T, h harness) harness {
	t.Helper()
	if err := h.mgr.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	return h
}

func TestSubmitTurnGrowsHistoryByTwoInOrder(t *testing.T) {
	tr := &fakeTransport{reply: func(n int, req domain.OutboundRequest) (domain.ChatReply, error) {
		return textReply("a" + req.Messages[len(req.Messages)-1].Content), nil
	}}
	h := restored(t, newHarness(t, nil, tr, nil))
	ctx := context.Background()

	for i, msg := range []string{"q1", "q2", "q3"} {
		turn, err := h.mgr.SubmitTurn(ctx, msg)
		if err != nil {
			t.Fatalf("SubmitTurn(%q) failed: %v", msg, err)
		}
		if turn.Role != domain.RoleAssistant || turn.Content != "a"+msg {
			t.Fatalf("unexpected reply turn %+v", turn)
		}
		if got := len(h.mgr.Snapshot().History); got != 2*(i+1) {
			t.Fatalf("after %d submissions expected %d turns, got %d", i+1, 2*(i+1), got)
		}
	}

	want := domain.History{
		domain.UserTurn("q1"), domain.AssistantTurn("aq1"),
		domain.UserTurn("q2"), domain.AssistantTurn("aq2"),
		domain.UserTurn("q3"), domain.AssistantTurn("aq3"),
	}
	got := h.mgr.Snapshot().History
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	// The third request carries the two earlier exchanges plus the new message once.
	if n := len(tr.last().Messages); n != 5 {
		t.Fatalf("expected 5 outbound messages, got %d", n)
	}

	persisted := conversation.NewStore(store.NewBucket(h.kv, "user-1:tab-1"), nil).Load(ctx)
	if len(persisted) != 6 {
		t.Fatalf("expected 6 persisted turns, got %d", len(persisted))
	}
}

func TestSubmitTurnRejectsEmpty(t *testing.T) {
	tr := &fakeTransport{}
	h := restored(t, newHarness(t, nil, tr, nil))
	before := len(h.renderer.snapshot())

	for _, msg := range []string{"", "   ", "\t\n"} {
		_, err := h.mgr.SubmitTurn(context.Background(), msg)
		if !errors.Is(err, domain.ErrEmptyInput) {
			t.Fatalf("SubmitTurn(%q): expected ErrEmptyInput, got %v", msg, err)
		}
	}
	if len(h.mgr.Snapshot().History) != 0 {
		t.Fatal("history must not change on validation errors")
	}
	if len(tr.requests) != 0 {
		t.Fatal("transport must not be called on validation errors")
	}
	if len(h.renderer.snapshot()) != before {
		t.Fatal("nothing must be rendered on validation errors")
	}
}

func TestSubmitTurnRateLimitedKeepsUserTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"You have exceeded the request limit. Wait a moment."}`))
	}))
	defer srv.Close()

	h := restored(t, newHarness(t, nil, transport.NewClient(srv.URL, time.Second, nil), nil))
	ctx := context.Background()

	_, err := h.mgr.SubmitTurn(ctx, "¿hola?")
	te, ok := transport.AsError(err)
	if !ok || te.Kind != transport.KindRateLimit {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	history := h.mgr.Snapshot().History
	if len(history) != 1 || history[0] != domain.UserTurn("¿hola?") {
		t.Fatalf("expected only the user turn, got %+v", history)
	}
	if h.mgr.State() != StateReady {
		t.Fatalf("expected Ready after failure, got %s", h.mgr.State())
	}
	if got := conversation.NewStore(store.NewBucket(h.kv, "user-1:tab-1"), nil).Load(ctx); len(got) != 0 {
		t.Fatalf("failed attempt must not be persisted, got %v", got)
	}
}

func TestSubmitTurnEmptyReplyIsTransportError(t *testing.T) {
	tr := &fakeTransport{reply: func(int, domain.OutboundRequest) (domain.ChatReply, error) {
		return domain.ChatReply{}, nil
	}}
	h := restored(t, newHarness(t, nil, tr, nil))

	_, err := h.mgr.SubmitTurn(context.Background(), "q")
	te, ok := transport.AsError(err)
	if !ok || te.Kind != transport.KindOther {
		t.Fatalf("expected other transport error, got %v", err)
	}
	if h.mgr.Snapshot().History.Count(domain.RoleAssistant) != 0 {
		t.Fatal("no assistant turn expected")
	}
}

func TestSubmitTurnPlainErrorIsClassified(t *testing.T) {
	tr := &fakeTransport{reply: func(int, domain.OutboundRequest) (domain.ChatReply, error) {
		return domain.ChatReply{}, errors.New("upstream authentication failed")
	}}
	h := restored(t, newHarness(t, nil, tr, nil))

	_, err := h.mgr.SubmitTurn(context.Background(), "q")
	if te, ok := transport.AsError(err); !ok || te.Kind != transport.KindAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	tr := &fakeTransport{block: make(chan struct{}), started: make(chan struct{}, 1)}
	h := restored(t, newHarness(t, nil, tr, nil))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.mgr.SubmitTurn(ctx, "first")
		done <- err
	}()
	<-tr.started

	if h.mgr.State() != StateSubmitting {
		t.Fatalf("expected Submitting, got %s", h.mgr.State())
	}
	if _, err := h.mgr.SubmitTurn(ctx, "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := h.mgr.Reset(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected Reset to report ErrBusy, got %v", err)
	}
	// Snapshot must not block while the transport call runs.
	if n := len(h.mgr.Snapshot().History); n != 1 {
		t.Fatalf("expected the first user turn only, got %d turns", n)
	}

	close(tr.block)
	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	history := h.mgr.Snapshot().History
	if len(history) != 2 || history[0].Content != "first" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestResetDuringSubmissionIsBusyThenSucceeds(t *testing.T) {
	tr := &fakeTransport{block: make(chan struct{}), started: make(chan struct{}, 1)}
	h := restored(t, newHarness(t, nil, tr, nil))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.mgr.SubmitTurn(ctx, "in flight")
		done <- err
	}()
	<-tr.started

	if err := h.mgr.Reset(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while submitting, got %v", err)
	}
	if h.mgr.State() != StateSubmitting {
		t.Fatalf("rejected Reset must not change state, got %s", h.mgr.State())
	}

	close(tr.block)
	if err := <-done; err != nil {
		t.Fatalf("submission failed: %v", err)
	}

	if err := h.mgr.Reset(ctx); err != nil {
		t.Fatalf("Reset after the submission failed: %v", err)
	}
	if n := len(h.mgr.Snapshot().History); n != 0 {
		t.Fatalf("expected empty history, got %d turns", n)
	}
	persisted := conversation.NewStore(store.NewBucket(h.kv, "user-1:tab-1"), nil).Load(ctx)
	if len(persisted) != 0 {
		t.Fatalf("expected persisted history cleared, got %d turns", len(persisted))
	}
}

func TestRestoreWithAutoTranscript(t *testing.T) {
	text := strings.Repeat("v", 60)
	tr := &fakeTransport{}
	h := restored(t, newHarness(t, fakeFetcher{payload: domain.TranscriptionPayload{
		Transcription: text, Length: 60, Loaded: true,
	}}, tr, nil))

	snap := h.mgr.Snapshot()
	if snap.Transcript.Mode != "auto" || snap.Transcript.Length != 60 {
		t.Fatalf("unexpected transcript info %+v", snap.Transcript)
	}
	if snap.Welcome != preset.Default().Welcome.AutoLoaded {
		t.Fatalf("unexpected welcome %q", snap.Welcome)
	}

	if _, err := h.mgr.SubmitTurn(context.Background(), "q"); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	req := tr.last()
	if !strings.Contains(req.System, text) {
		t.Fatal("expected auto transcript verbatim in system prompt")
	}
	if req.UseAutoTranscription {
		t.Fatal("expected use_auto_transcription=false with an auto transcript")
	}
}

func TestRestoreWhenFetchFails(t *testing.T) {
	tr := &fakeTransport{}
	h := restored(t, newHarness(t, fakeFetcher{err: errors.New("connection refused")}, tr, nil))

	if h.mgr.State() != StateReady {
		t.Fatalf("expected Ready despite fetch failure, got %s", h.mgr.State())
	}
	if snap := h.mgr.Snapshot(); snap.Transcript.Mode != "none" {
		t.Fatalf("expected no transcript, got %+v", snap.Transcript)
	}
	if _, err := h.mgr.SubmitTurn(context.Background(), "q"); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	req := tr.last()
	if !strings.Contains(req.System, composer.MissingTranscriptMarker) {
		t.Fatalf("expected missing-transcript branch, got %q", req.System)
	}
	if !req.UseAutoTranscription {
		t.Fatal("expected use_auto_transcription=true without an auto transcript")
	}
}

func TestRestoreRendersPersistedHistory(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	seed := conversation.NewStore(store.NewBucket(kv, "user-1:tab-1"), nil)
	seed.Append(domain.UserTurn("old q"))
	seed.Append(domain.AssistantTurn("old a"))
	if err := seed.Persist(ctx); err != nil {
		t.Fatal(err)
	}

	h := restored(t, newHarness(t, nil, &fakeTransport{}, kv))
	events := h.renderer.snapshot()
	if len(events) != 1 || !events[0].replaced || len(events[0].history) != 2 {
		t.Fatalf("expected one HistoryReplaced with 2 turns, got %+v", events)
	}
}

func TestRestoreTwiceIsInvalid(t *testing.T) {
	h := restored(t, newHarness(t, nil, &fakeTransport{}, nil))
	if err := h.mgr.Restore(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSubmitBeforeRestoreIsInvalid(t *testing.T) {
	h := newHarness(t, nil, &fakeTransport{}, nil)
	if _, err := h.mgr.SubmitTurn(context.Background(), "q"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestResetClearsHistory(t *testing.T) {
	h := restored(t, newHarness(t, nil, &fakeTransport{}, nil))
	ctx := context.Background()
	for _, q := range []string{"a", "b"} {
		if _, err := h.mgr.SubmitTurn(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.mgr.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n := len(h.mgr.Snapshot().History); n != 0 {
		t.Fatalf("expected empty history, got %d", n)
	}
	if got := conversation.NewStore(store.NewBucket(h.kv, "user-1:tab-1"), nil).Load(ctx); len(got) != 0 {
		t.Fatalf("expected empty load after reset, got %d", len(got))
	}
	events := h.renderer.snapshot()
	last := events[len(events)-1]
	if !last.replaced || len(last.history) != 0 {
		t.Fatalf("expected final HistoryReplaced(empty), got %+v", last)
	}
	if h.mgr.State() != StateReady {
		t.Fatalf("expected Ready, got %s", h.mgr.State())
	}
}

func TestSetManualTranscriptWhenAutoLoaded(t *testing.T) {
	auto := strings.Repeat("x", 80)
	h := restored(t, newHarness(t, fakeFetcher{payload: domain.TranscriptionPayload{
		Transcription: auto, Loaded: true,
	}}, &fakeTransport{}, nil))

	err := h.mgr.SetManualTranscript(context.Background(), "pasted")
	if !errors.Is(err, transcript.ErrAlreadyAutoLoaded) {
		t.Fatalf("expected ErrAlreadyAutoLoaded, got %v", err)
	}
	if snap := h.mgr.Snapshot(); snap.Transcript.Mode != "auto" || len(snap.History) != 0 {
		t.Fatalf("session must be unchanged, got %+v", snap)
	}
}

func TestSetManualTranscriptAcknowledges(t *testing.T) {
	tr := &fakeTransport{}
	h := restored(t, newHarness(t, nil, tr, nil))
	ctx := context.Background()

	if err := h.mgr.SetManualTranscript(ctx, "  la transcripción  "); err != nil {
		t.Fatalf("SetManualTranscript failed: %v", err)
	}
	snap := h.mgr.Snapshot()
	if snap.Transcript.Mode != "manual" {
		t.Fatalf("expected manual transcript, got %+v", snap.Transcript)
	}
	if len(snap.History) != 1 || snap.History[0] != domain.AssistantTurn(preset.Default().Welcome.ManualSaved) {
		t.Fatalf("expected acknowledgement turn, got %+v", snap.History)
	}

	if _, err := h.mgr.SubmitTurn(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if req := tr.last(); !strings.Contains(req.System, "la transcripción") || !req.UseAutoTranscription {
		t.Fatalf("expected manual transcript in prompt with flag true, got %+v", req)
	}

	if err := h.mgr.SetManualTranscript(ctx, "   "); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestRenderersFanOut(t *testing.T) {
	a, b := &recordingRenderer{}, &recordingRenderer{}
	rs := Renderers{a, b}
	rs.TurnAppended(domain.UserTurn("x"))
	rs.HistoryReplaced(domain.History{domain.UserTurn("x")})
	if len(a.snapshot()) != 2 || len(b.snapshot()) != 2 {
		t.Fatal("expected both renderers to receive both events")
	}
}
