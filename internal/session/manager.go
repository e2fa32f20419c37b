// Package session orchestrates one tab's conversation: restore, submit, reset.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ashureev/videolearn/internal/composer"
	"github.com/ashureev/videolearn/internal/conversation"
	"github.com/ashureev/videolearn/internal/convlog"
	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/preset"
	"github.com/ashureev/videolearn/internal/transcript"
	"github.com/ashureev/videolearn/internal/transport"
)

var (
	// ErrBusy is returned when another operation is in flight. Submissions
	// are rejected, not queued.
	ErrBusy = errors.New("session is busy")
	// ErrInvalidState is returned for an operation the current state does not allow.
	ErrInvalidState = errors.New("invalid session state")
)

// Transport sends one chat request.
type Transport interface {
	Send(ctx context.Context, req domain.OutboundRequest) (domain.ChatReply, error)
}

// Config wires a Manager to its collaborators.
type Config struct {
	UserID    string
	SessionID string

	Conversation *conversation.Store
	Transcript   *transcript.Source
	Composer     *composer.Composer
	Transport    Transport
	Renderer     Renderer
	Journal      convlog.Logger
	Welcome      preset.Welcome
	Logger       *slog.Logger
}

// Manager owns the state machine of one tab session.
// mu guards state, the conversation store and the transcript source; it is
// released while the transport call runs.
type Manager struct {
	userID    string
	sessionID string

	conv      *conversation.Store
	source    *transcript.Source
	composer  *composer.Composer
	transport Transport
	renderer  Renderer
	journal   convlog.Logger
	welcome   preset.Welcome
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// NewManager creates a Manager in StateUninitialized.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = NopRenderer{}
	}
	journal := cfg.Journal
	if journal == nil {
		journal = convlog.Nop{}
	}
	return &Manager{
		userID:    cfg.UserID,
		sessionID: cfg.SessionID,
		conv:      cfg.Conversation,
		source:    cfg.Transcript,
		composer:  cfg.Composer,
		transport: cfg.Transport,
		renderer:  renderer,
		journal:   journal,
		welcome:   cfg.Welcome,
		logger:    logger.With("user_id", cfg.UserID, "session_id", cfg.SessionID),
		state:     StateUninitialized,
	}
}

// Restore loads the transcript and persisted history, then enters Ready.
// A failed transcript fetch does not prevent the session from starting.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUninitialized {
		return fmt.Errorf("restore from %s: %w", m.state, ErrInvalidState)
	}
	m.state = StateRestoring

	m.source.FetchAuto(ctx)
	m.source.LoadManual(ctx)
	history := m.conv.Load(ctx)

	m.state = StateReady
	m.renderer.HistoryReplaced(history)

	m.logger.Info("session restored",
		"turns", len(history),
		"auto_transcript", m.source.AutoActive())
	return nil
}

// SubmitTurn sends message and returns the assistant turn.
// On transport failure the user turn stays in memory, nothing is persisted
// and a *transport.Error is returned.
func (m *Manager) SubmitTurn(ctx context.Context, message string) (domain.Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Turn{}, &domain.ValidationError{Field: "message"}
	}

	m.mu.Lock()
	if err := m.checkReady(); err != nil {
		m.mu.Unlock()
		return domain.Turn{}, err
	}

	prior := m.conv.History()
	userTurn := domain.UserTurn(message)
	m.conv.Append(userTurn)
	m.renderer.TurnAppended(userTurn)

	text, hasTranscript := m.source.Current()
	req := m.composer.Build(prior, message, text, hasTranscript, m.source.AutoActive())
	m.state = StateSubmitting
	m.mu.Unlock()

	m.logTurn(userTurn, "outbound", nil)

	reply, err := m.transport.Send(ctx, req)
	if err == nil && reply.Text() == "" {
		err = transport.Classify(0, "empty reply from chat endpoint", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateReady

	if err != nil {
		te, ok := transport.AsError(err)
		if !ok {
			te = transport.Classify(0, err.Error(), err)
		}
		m.logger.Warn("chat submission failed", "kind", te.Kind, "status", te.Status, "error", te)
		m.journal.Log(convlog.Event{
			UserID:     m.userID,
			SessionID:  m.sessionID,
			Channel:    "session",
			Direction:  "inbound",
			EventType:  "transport_error",
			ContentRaw: te.Error(),
			Meta:       map[string]any{"kind": string(te.Kind), "status": te.Status},
		})
		return domain.Turn{}, te
	}

	assistantTurn := domain.AssistantTurn(reply.Text())
	m.conv.Append(assistantTurn)
	m.renderer.TurnAppended(assistantTurn)
	if err := m.conv.Persist(ctx); err != nil {
		m.logger.Warn("failed to persist chat history", "error", err)
	}

	m.logTurn(assistantTurn, "inbound", map[string]any{
		"input_tokens":  reply.Usage.InputTokens,
		"output_tokens": reply.Usage.OutputTokens,
		"model":         reply.Model,
	})
	return assistantTurn, nil
}

// Reset clears the conversation in memory and storage. It fails only when
// another operation is in flight.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return err
	}
	m.state = StateResetting
	if err := m.conv.Reset(ctx); err != nil {
		m.logger.Warn("chat history reset incomplete", "error", err)
	}
	m.state = StateReady
	m.renderer.HistoryReplaced(nil)

	m.journal.Log(convlog.Event{
		UserID:    m.userID,
		SessionID: m.sessionID,
		Channel:   "session",
		Direction: "internal",
		EventType: "history_reset",
	})
	return nil
}

// SetManualTranscript stores a pasted transcript and acknowledges it with an
// assistant turn. transcript.ErrAlreadyAutoLoaded is returned untouched.
func (m *Manager) SetManualTranscript(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return err
	}
	if err := m.source.SetManual(ctx, text); err != nil {
		return err
	}

	if m.welcome.ManualSaved != "" {
		ack := domain.AssistantTurn(m.welcome.ManualSaved)
		m.conv.Append(ack)
		m.renderer.TurnAppended(ack)
	}
	m.logger.Info("manual transcript saved", "length", utf8.RuneCountInString(strings.TrimSpace(text)))
	return nil
}

// TranscriptInfo describes the active transcript without its text.
type TranscriptInfo struct {
	Mode   string `json:"mode"`
	Length int    `json:"length"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	State      State          `json:"state"`
	History    domain.History `json:"history"`
	Transcript TranscriptInfo `json:"transcript"`
	Welcome    string         `json:"welcome"`
}

// Snapshot returns the current state, a history copy and the welcome text.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.conv.History()
	if history == nil {
		history = domain.History{}
	}
	return Snapshot{
		State:      m.state,
		History:    history,
		Transcript: m.transcriptInfo(),
		Welcome:    m.welcomeText(),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Welcome returns the greeting for the active transcript mode.
func (m *Manager) Welcome() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.welcomeText()
}

func (m *Manager) welcomeText() string {
	if m.source.AutoActive() {
		return m.welcome.AutoLoaded
	}
	return m.welcome.Manual
}

func (m *Manager) transcriptInfo() TranscriptInfo {
	switch st := m.source.State().(type) {
	case domain.AutoLoaded:
		return TranscriptInfo{Mode: "auto", Length: st.Length}
	case domain.ManualPending:
		if st.Content == "" {
			return TranscriptInfo{Mode: "none"}
		}
		return TranscriptInfo{Mode: "manual", Length: utf8.RuneCountInString(st.Content)}
	default:
		return TranscriptInfo{Mode: "none"}
	}
}

// checkReady must be called with mu held.
func (m *Manager) checkReady() error {
	switch m.state {
	case StateReady:
		return nil
	case StateUninitialized:
		return fmt.Errorf("session not restored: %w", ErrInvalidState)
	default:
		return ErrBusy
	}
}

func (m *Manager) logTurn(turn domain.Turn, direction string, meta map[string]any) {
	m.journal.Log(convlog.Event{
		UserID:     m.userID,
		SessionID:  m.sessionID,
		Channel:    "session",
		Direction:  direction,
		EventType:  string(turn.Role) + "_turn",
		ContentRaw: turn.Content,
		Meta:       meta,
	})
}
