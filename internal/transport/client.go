// Package transport talks to the chat backend over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/ashureev/videolearn/internal/domain"
)

const (
	chatPath          = "/api/chat"
	transcriptionPath = "/api/transcription"
	healthPath        = "/api/health"

	maxErrorBody = 64 << 10
)

// Client calls the chat, transcription and health endpoints. Each call is
// a single attempt.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	// The jar keeps the anonymous identity cookie so that every call is
	// attributed to the same user.
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Jar: jar},
		logger:  logger,
	}
}

// Send posts one chat request and returns the reply.
// Failures are returned as *Error.
func (c *Client) Send(ctx context.Context, req domain.OutboundRequest) (domain.ChatReply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("marshal chat request: %w", err)
	}

	c.logger.Debug("sending chat request", "messages", len(req.Messages), "model", req.Model)

	var reply domain.ChatReply
	if err := c.do(ctx, http.MethodPost, chatPath, bytes.NewReader(body), &reply); err != nil {
		return domain.ChatReply{}, err
	}

	c.logger.Debug("chat reply received",
		"input_tokens", reply.Usage.InputTokens,
		"output_tokens", reply.Usage.OutputTokens)
	return reply, nil
}

// FetchTranscription implements transcript.Fetcher.
func (c *Client) FetchTranscription(ctx context.Context) (domain.TranscriptionPayload, error) {
	var payload domain.TranscriptionPayload
	if err := c.do(ctx, http.MethodGet, transcriptionPath, nil, &payload); err != nil {
		return domain.TranscriptionPayload{}, err
	}
	return payload, nil
}

// Health queries the backend health endpoint.
func (c *Client) Health(ctx context.Context) (domain.Health, error) {
	var h domain.Health
	if err := c.do(ctx, http.MethodGet, healthPath, nil, &h); err != nil {
		return domain.Health{}, err
	}
	return h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Classify(0, err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Classify(resp.StatusCode, errorMessage(resp), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Classify(resp.StatusCode, "decode response: "+err.Error(), err)
	}
	return nil
}

// errorMessage prefers the backend's {"error": "..."} body and falls back
// to the status line.
func errorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return httpStatusMessage(resp.StatusCode)
	}
	var body struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return httpStatusMessage(resp.StatusCode)
	}
	if body.Error == nil || *body.Error == "" {
		return "Unknown error"
	}
	return *body.Error
}
