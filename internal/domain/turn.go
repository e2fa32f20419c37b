// Package domain contains core domain types for the VideoLearn chat.
package domain

// Role tags who authored a turn.
type Role string

const (
	// RoleUser marks a turn typed by the learner.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a user turn with the given content.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns an assistant turn with the given content.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// IsConversational reports whether the turn belongs in the outbound message list.
func (t Turn) IsConversational() bool {
	return t.Role == RoleUser || t.Role == RoleAssistant
}

// History is the ordered, append-only sequence of turns.
// Strict user/assistant alternation is not enforced.
type History []Turn

// Clone returns a copy that does not share the backing array.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Count returns how many turns carry the given role.
func (h History) Count(role Role) int {
	n := 0
	for _, t := range h {
		if t.Role == role {
			n++
		}
	}
	return n
}
