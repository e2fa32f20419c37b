// Package composer assembles the outbound chat request for one submission.
package composer

import (
	"strings"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/preset"
)

// Delimiters of the system prompt. The chat proxy looks for them when it
// decides whether to inject its own transcript.
const (
	TranscriptHeader        = "=== VIDEO TRANSCRIPT ==="
	AutoTranscriptHeader    = "=== VIDEO TRANSCRIPT (LOADED AUTOMATICALLY) ==="
	InstructionsHeader      = "=== INSTRUCTIONS ==="
	MissingTranscriptMarker = "⚠️ IMPORTANT: The video transcript has not been provided yet."
)

// Completion defaults used when neither the preset nor the caller sets them.
const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1000
)

// Composer builds OutboundRequests from a preset.
type Composer struct {
	preset    preset.Preset
	model     string
	maxTokens int
}

// New returns a Composer. A non-zero model or token limit argument (from
// CHAT_MODEL / CHAT_MAX_TOKENS) wins over the preset; the preset wins over
// the defaults.
func New(p preset.Preset, model string, maxTokens int) *Composer {
	if model == "" {
		model = p.Model
	}
	if maxTokens <= 0 {
		maxTokens = p.MaxTokens
	}
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Composer{preset: p, model: model, maxTokens: maxTokens}
}

// Model returns the model name placed in every request.
func (c *Composer) Model() string { return c.model }

// Build creates the request for newMessage on top of history.
// The remote fallback flag is the negation of autoActive.
func (c *Composer) Build(history domain.History, newMessage, transcript string, hasTranscript, autoActive bool) domain.OutboundRequest {
	return domain.OutboundRequest{
		Messages:             Project(history, newMessage),
		System:               c.SystemPrompt(transcript, hasTranscript),
		Model:                c.model,
		MaxTokens:            c.maxTokens,
		UseAutoTranscription: !autoActive,
	}
}

// SystemPrompt returns the preamble followed by either the transcript block
// or the missing-transcript instruction.
func (c *Composer) SystemPrompt(transcript string, hasTranscript bool) string {
	var b strings.Builder
	b.WriteString(c.preset.Preamble)
	b.WriteString("\n\n")
	if hasTranscript {
		b.WriteString(TranscriptHeader)
		b.WriteString("\n")
		b.WriteString(transcript)
		b.WriteString("\n\n")
		b.WriteString(InstructionsHeader)
		b.WriteString("\n")
		b.WriteString(c.preset.TranscriptInstruction)
		return b.String()
	}
	b.WriteString(MissingTranscriptMarker)
	b.WriteString(" ")
	b.WriteString(c.preset.MissingInstruction)
	return b.String()
}

// Project maps history into the outbound message list and appends
// newMessage as the final user message.
func Project(history domain.History, newMessage string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+1)
	for _, t := range history {
		if !t.IsConversational() {
			continue
		}
		role := string(domain.RoleAssistant)
		if t.Role == domain.RoleUser {
			role = string(domain.RoleUser)
		}
		msgs = append(msgs, domain.Message{Role: role, Content: t.Content})
	}
	return append(msgs, domain.Message{Role: string(domain.RoleUser), Content: newMessage})
}

// InjectServerTranscript swaps the missing-transcript marker for the
// server-held transcript. The prompt is returned unchanged when it already
// carries a transcript or when there is nothing to inject.
func InjectServerTranscript(system, transcript, instruction string) string {
	if transcript == "" || strings.Contains(system, TranscriptHeader) {
		return system
	}
	block := AutoTranscriptHeader + "\n" + transcript + "\n\n" + InstructionsHeader + "\n" + instruction
	return strings.Replace(system, MissingTranscriptMarker, block, 1)
}
