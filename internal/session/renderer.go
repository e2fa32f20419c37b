package session

import "github.com/ashureev/videolearn/internal/domain"

// Renderer receives history changes in the order they happen.
// Implementations must not call back into the Manager.
type Renderer interface {
	TurnAppended(turn domain.Turn)
	HistoryReplaced(history domain.History)
}

// Renderers fans events out to several renderers.
type Renderers []Renderer

func (rs Renderers) TurnAppended(turn domain.Turn) {
	for _, r := range rs {
		r.TurnAppended(turn)
	}
}

func (rs Renderers) HistoryReplaced(history domain.History) {
	for _, r := range rs {
		r.HistoryReplaced(history.Clone())
	}
}

// NopRenderer ignores all events.
type NopRenderer struct{}

func (NopRenderer) TurnAppended(domain.Turn)       {}
func (NopRenderer) HistoryReplaced(domain.History) {}
