package domain

// TranscriptState is the active transcript mode of a session.
// Exactly two implementations exist: AutoLoaded and ManualPending.
type TranscriptState interface {
	// Text returns the transcript text carried by the state, possibly empty.
	Text() string
	transcriptState()
}

// AutoLoaded is a transcript delivered by the server at startup.
// Once set it is authoritative and manual edits are rejected.
type AutoLoaded struct {
	Content string `json:"transcription"`
	Length  int    `json:"length"`
}

// Text implements TranscriptState.
func (a AutoLoaded) Text() string { return a.Content }

func (AutoLoaded) transcriptState() {}

// ManualPending is a transcript pasted by the user, or nothing yet.
type ManualPending struct {
	Content string `json:"transcription"`
}

// Text implements TranscriptState.
func (m ManualPending) Text() string { return m.Content }

func (ManualPending) transcriptState() {}

// IsAutoLoaded reports whether s is the AutoLoaded mode.
func IsAutoLoaded(s TranscriptState) bool {
	_, ok := s.(AutoLoaded)
	return ok
}

// TranscriptionPayload is the body served by the auto-transcription endpoint.
type TranscriptionPayload struct {
	Transcription string `json:"transcription"`
	Length        int    `json:"length"`
	Loaded        bool   `json:"loaded"`
}
