package transcript

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/videolearn/internal/domain"
)

const tripleQuote = `"""`

// LoadFile reads a transcript file. When the file wraps the text in a
// triple-quoted block, only the first block is returned.
func LoadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return extract(string(data)), nil
}

func extract(content string) string {
	if parts := strings.Split(content, tripleQuote); len(parts) >= 3 {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(content)
}

// Static serves a transcript held in process memory.
type Static struct {
	text string
}

// NewStatic wraps text as a Fetcher.
func NewStatic(text string) Static {
	return Static{text: text}
}

// Text returns the held transcript.
func (s Static) Text() string { return s.text }

// Payload returns the transcription endpoint body for the held text.
func (s Static) Payload() domain.TranscriptionPayload {
	n := utf8.RuneCountInString(s.text)
	return domain.TranscriptionPayload{
		Transcription: s.text,
		Length:        n,
		Loaded:        n > 0,
	}
}

// FetchTranscription implements Fetcher.
func (s Static) FetchTranscription(context.Context) (domain.TranscriptionPayload, error) {
	return s.Payload(), nil
}
