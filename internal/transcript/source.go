// Package transcript tracks which video transcript a session answers from.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/store"
)

// MinAutoLength is the length an auto-loaded transcript must exceed to be accepted.
const MinAutoLength = 50

// ErrAlreadyAutoLoaded signals that a manual write was ignored because the
// server transcript is authoritative. It is informational, not a failure.
var ErrAlreadyAutoLoaded = errors.New("transcript already auto-loaded")

// Fetcher retrieves the server-side transcript.
type Fetcher interface {
	FetchTranscription(ctx context.Context) (domain.TranscriptionPayload, error)
}

// Source holds the active transcript mode of one session.
type Source struct {
	fetcher Fetcher
	bucket  store.Bucket
	state   domain.TranscriptState
	logger  *slog.Logger
}

// NewSource starts in ManualPending with no text.
func NewSource(fetcher Fetcher, bucket store.Bucket, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		fetcher: fetcher,
		bucket:  bucket,
		state:   domain.ManualPending{},
		logger:  logger,
	}
}

// FetchAuto makes one attempt to load the server transcript.
// Any failure or a too-short text yields false; that is an expected outcome.
func (s *Source) FetchAuto(ctx context.Context) (domain.AutoLoaded, bool) {
	if s.fetcher == nil {
		return domain.AutoLoaded{}, false
	}

	payload, err := s.fetcher.FetchTranscription(ctx)
	if err != nil {
		s.logger.Info("no auto transcription available", "error", err)
		return domain.AutoLoaded{}, false
	}
	if !payload.Loaded || utf8.RuneCountInString(payload.Transcription) <= MinAutoLength {
		s.logger.Info("no auto transcription available",
			"loaded", payload.Loaded, "length", utf8.RuneCountInString(payload.Transcription))
		return domain.AutoLoaded{}, false
	}

	length := payload.Length
	if length <= 0 {
		length = utf8.RuneCountInString(payload.Transcription)
	}
	auto := domain.AutoLoaded{Content: payload.Transcription, Length: length}
	s.state = auto
	s.logger.Info("auto transcription loaded", "length", auto.Length)
	return auto, true
}

// LoadManual restores a previously saved manual transcript unless the
// auto-loaded one is active.
func (s *Source) LoadManual(ctx context.Context) {
	if s.AutoActive() {
		return
	}
	saved, found, err := s.bucket.Get(ctx, store.KeyTranscript)
	if err != nil {
		s.logger.Warn("failed to read saved transcript", "namespace", s.bucket.Namespace(), "error", err)
		return
	}
	if found && saved != "" {
		s.state = domain.ManualPending{Content: saved}
	}
}

// SetManual stores a user-pasted transcript.
func (s *Source) SetManual(ctx context.Context, text string) error {
	if s.AutoActive() {
		return ErrAlreadyAutoLoaded
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &domain.ValidationError{Field: "transcript"}
	}
	if err := s.bucket.Set(ctx, store.KeyTranscript, text); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	s.state = domain.ManualPending{Content: text}
	return nil
}

// Current returns the active transcript text, if any.
func (s *Source) Current() (string, bool) {
	text := s.state.Text()
	return text, text != ""
}

// AutoActive reports whether the auto-loaded transcript is in effect.
func (s *Source) AutoActive() bool {
	return domain.IsAutoLoaded(s.state)
}

// State returns the current transcript mode.
func (s *Source) State() domain.TranscriptState {
	return s.state
}
