package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/store"
)

func TestPersistLoadRoundTripOnFreshStore(t *testing.T) {
	kv, err := store.NewSQLite(filepath.Join(t.TempDir(), "conv.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer func() { _ = kv.Close() }()
	ctx := context.Background()

	s := NewStore(store.NewBucket(kv, "u:tab"), nil)
	want := domain.History{
		domain.UserTurn("¿Qué es una condición suspensiva?"),
		domain.AssistantTurn("Es un hecho futuro e incierto..."),
		domain.UserTurn("¿Y la resolutoria?"),
	}
	for _, turn := range want {
		s.Append(turn)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	fresh := NewStore(store.NewBucket(kv, "u:tab"), nil)
	got := fresh.Load(ctx)
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestAppendDoesNotPersist(t *testing.T) {
	kv := store.NewMemory()
	s := NewStore(store.NewBucket(kv, "ns"), nil)
	s.Append(domain.UserTurn("hola"))

	if _, found, _ := kv.Get(context.Background(), "ns", store.KeyChatHistory); found {
		t.Fatal("Append must not write to storage")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 turn in memory, got %d", s.Len())
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s := NewStore(store.NewBucket(store.NewMemory(), "ns"), nil)
	if got := s.Load(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
}

func TestLoadMalformedIsEmpty(t *testing.T) {
	kv := store.NewMemory()
	_ = kv.Set(context.Background(), "ns", store.KeyChatHistory, `{not json`)

	s := NewStore(store.NewBucket(kv, "ns"), nil)
	s.Append(domain.UserTurn("stale"))
	if got := s.Load(context.Background()); len(got) != 0 {
		t.Fatalf("expected corrupt entry to load as empty, got %v", got)
	}
	if s.Len() != 0 {
		t.Fatalf("expected in-memory history replaced, got %d", s.Len())
	}
}

func TestLoadStorageErrorIsEmpty(t *testing.T) {
	s := NewStore(store.NewBucket(failingKV{}, "ns"), nil)
	if got := s.Load(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty history on storage error, got %v", got)
	}
}

func TestResetClearsMemoryAndStorage(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	s := NewStore(store.NewBucket(kv, "ns"), nil)
	s.Append(domain.UserTurn("a"))
	s.Append(domain.AssistantTurn("b"))
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty memory, got %d", s.Len())
	}
	if got := NewStore(store.NewBucket(kv, "ns"), nil).Load(ctx); len(got) != 0 {
		t.Fatalf("expected empty load after reset, got %v", got)
	}
}

func TestResetClearsMemoryWhenDeleteFails(t *testing.T) {
	s := NewStore(store.NewBucket(failingKV{}, "ns"), nil)
	s.Append(domain.UserTurn("a"))
	if err := s.Reset(context.Background()); err == nil {
		t.Fatal("expected delete error to be reported")
	}
	if s.Len() != 0 {
		t.Fatal("expected memory cleared despite storage failure")
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore(store.NewBucket(store.NewMemory(), "ns"), nil)
	s.Append(domain.UserTurn("a"))
	h := s.History()
	h[0].Content = "mutated"
	if s.History()[0].Content != "a" {
		t.Fatal("History must not expose internal slice")
	}
}

func TestPersistEmptyWritesEmptyArray(t *testing.T) {
	kv := store.NewMemory()
	s := NewStore(store.NewBucket(kv, "ns"), nil)
	if err := s.Persist(context.Background()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	raw, _, _ := kv.Get(context.Background(), "ns", store.KeyChatHistory)
	if raw != "[]" {
		t.Fatalf("expected [], got %q", raw)
	}
}

var errStorage = errors.New("storage unavailable")

type failingKV struct{}

func (failingKV) Get(context.Context, string, string) (string, bool, error) {
	return "", false, errStorage
}
func (failingKV) Set(context.Context, string, string, string) error { return errStorage }
func (failingKV) Delete(context.Context, string, string) error      { return errStorage }
func (failingKV) CleanupExpired(context.Context, time.Duration) (int64, error) {
	return 0, errStorage
}
func (failingKV) Ping(context.Context) error { return errStorage }
func (failingKV) Close() error               { return nil }
