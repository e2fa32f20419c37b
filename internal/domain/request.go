package domain

// Message is one entry of the outbound message list.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OutboundRequest is built fresh for every submission.
type OutboundRequest struct {
	Messages             []Message `json:"messages"`
	System               string    `json:"system"`
	Model                string    `json:"model"`
	MaxTokens            int       `json:"max_tokens"`
	UseAutoTranscription bool      `json:"use_auto_transcription"`
}

// ContentBlock is a piece of model output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ChatReply is the successful response of the chat endpoint.
type ChatReply struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Text returns the text of the first content block, or "" if there is none.
func (r ChatReply) Text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// Health is the body served by the health endpoint.
type Health struct {
	Status              string `json:"status"`
	Message             string `json:"message"`
	APIKeyConfigured    bool   `json:"api_key_configured"`
	TranscriptionLoaded bool   `json:"transcription_loaded"`
	TranscriptionLength int    `json:"transcription_length"`
}
