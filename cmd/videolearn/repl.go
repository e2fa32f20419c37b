package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/transcript"
	"github.com/ashureev/videolearn/internal/transport"
)

const helpText = `Commands:
  /transcript <text>  save a transcript for this conversation
  /reset              clear the conversation
  /help               show this help
  /quit               leave`

// chatSession is the part of session.Manager the REPL drives.
type chatSession interface {
	SubmitTurn(ctx context.Context, message string) (domain.Turn, error)
	Reset(ctx context.Context) error
	SetManualTranscript(ctx context.Context, text string) error
}

// terminalRenderer prints turns as they are appended. User turns are not
// echoed since the terminal already shows what was typed.
type terminalRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	return &terminalRenderer{out: out}
}

func (r *terminalRenderer) TurnAppended(turn domain.Turn) {
	if turn.Role != domain.RoleAssistant {
		return
	}
	r.printf("assistant> %s\n", turn.Content)
}

func (r *terminalRenderer) HistoryReplaced(history domain.History) {
	for _, turn := range history {
		r.printf("%s> %s\n", prefix(turn.Role), turn.Content)
	}
}

func (r *terminalRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func prefix(role domain.Role) string {
	if role == domain.RoleUser {
		return "you"
	}
	return "assistant"
}

func runREPL(ctx context.Context, in io.Reader, out *terminalRenderer, s chatSession, dev bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for {
		out.printf("you> ")
		if !scanner.Scan() {
			out.printf("\n")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			out.printf("%s\n", helpText)
		case line == "/reset":
			if err := s.Reset(ctx); err != nil {
				out.printf("error: %v\n", err)
			}
		case strings.HasPrefix(line, "/transcript"):
			text := strings.TrimSpace(strings.TrimPrefix(line, "/transcript"))
			if err := s.SetManualTranscript(ctx, text); err != nil {
				out.printf("%s\n", transcriptError(err))
			}
		default:
			if _, err := s.SubmitTurn(ctx, line); err != nil {
				out.printf("%s\n", submitError(err, dev))
			}
		}
	}
}

func submitError(err error, dev bool) string {
	if te, ok := transport.AsError(err); ok {
		return te.Remediation(dev)
	}
	return "error: " + err.Error()
}

func transcriptError(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, transcript.ErrAlreadyAutoLoaded):
		return "The server already provides the video transcript."
	case errors.As(err, &verr):
		return "Paste the transcript after /transcript."
	default:
		return "error: " + err.Error()
	}
}
