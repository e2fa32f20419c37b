// Package conversation holds and persists the ordered chat history of one tab session.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/store"
)

// Store owns the in-memory history and its durable copy.
// Load and Append never touch storage for writing; Persist and Reset do.
type Store struct {
	bucket  store.Bucket
	history domain.History
	logger  *slog.Logger
}

// NewStore creates an empty store bound to a storage bucket.
func NewStore(bucket store.Bucket, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{bucket: bucket, logger: logger}
}

// Load replaces the in-memory history with the persisted one.
// A missing, unreadable or malformed entry is treated as a fresh start.
func (s *Store) Load(ctx context.Context) domain.History {
	s.history = nil

	raw, found, err := s.bucket.Get(ctx, store.KeyChatHistory)
	if err != nil {
		s.logger.Warn("failed to read chat history, starting fresh",
			"namespace", s.bucket.Namespace(), "error", err)
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	var history domain.History
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.logger.Warn("discarding malformed chat history",
			"namespace", s.bucket.Namespace(), "error", err)
		return nil
	}

	s.history = history
	return s.history.Clone()
}

// Append adds a turn in memory only.
func (s *Store) Append(turn domain.Turn) {
	s.history = append(s.history, turn)
}

// Persist overwrites the durable copy with the full in-memory history.
func (s *Store) Persist(ctx context.Context) error {
	history := s.history
	if history == nil {
		history = domain.History{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal chat history: %w", err)
	}
	if err := s.bucket.Set(ctx, store.KeyChatHistory, string(data)); err != nil {
		return fmt.Errorf("persist chat history: %w", err)
	}
	return nil
}

// Reset clears memory and deletes the durable copy.
// Memory is cleared even when the delete fails.
func (s *Store) Reset(ctx context.Context) error {
	s.history = nil
	if err := s.bucket.Delete(ctx, store.KeyChatHistory); err != nil {
		s.logger.Warn("failed to delete chat history", "namespace", s.bucket.Namespace(), "error", err)
		return fmt.Errorf("reset chat history: %w", err)
	}
	return nil
}

// History returns a copy of the in-memory history.
func (s *Store) History() domain.History {
	return s.history.Clone()
}

// Len returns the number of turns in memory.
func (s *Store) Len() int {
	return len(s.history)
}
