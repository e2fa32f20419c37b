// Package llm calls the upstream completion API on behalf of the chat proxy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ashureev/videolearn/internal/domain"
)

// Client wraps the Anthropic Messages API.
type Client struct {
	api    anthropic.Client
	logger *slog.Logger
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// MaxRetries is handed to the SDK; a negative value keeps its default.
	MaxRetries int
}

// NewClient creates a Client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	if opts.MaxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	return &Client{api: anthropic.NewClient(reqOpts...), logger: logger}
}

// Complete forwards req upstream and converts the answer into a ChatReply.
func (c *Client) Complete(ctx context.Context, req domain.OutboundRequest) (domain.ChatReply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toMessageParams(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("create message: %w", err)
	}

	c.logger.Info("upstream completion",
		"model", string(msg.Model),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
		"duration", time.Since(start))
	return toReply(msg), nil
}

func toMessageParams(msgs []domain.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == string(domain.RoleUser) {
			out = append(out, anthropic.NewUserMessage(block))
		} else {
			out = append(out, anthropic.NewAssistantMessage(block))
		}
	}
	return out
}

func toReply(msg *anthropic.Message) domain.ChatReply {
	reply := domain.ChatReply{
		ID:         msg.ID,
		Type:       string(msg.Type),
		Role:       string(msg.Role),
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: domain.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		reply.Content = append(reply.Content, domain.ContentBlock{Type: block.Type, Text: block.Text})
	}
	return reply
}

// Upstream failure messages returned to the widget.
const (
	msgAuthentication = "Authentication error. Check your API key."
	msgRateLimit      = "You have exceeded the request limit. Wait a moment."
	msgOverloaded     = "The model server is overloaded. Try again in a few seconds."
)

// ErrorStatus maps an upstream failure to the HTTP status and message the
// chat proxy returns.
func ErrorStatus(err error) (int, string) {
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	msg := strings.ToLower(err.Error())

	switch {
	case status == http.StatusUnauthorized || strings.Contains(msg, "authentication") || strings.Contains(msg, "401"):
		return http.StatusUnauthorized, msgAuthentication
	case status == http.StatusTooManyRequests || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429"):
		return http.StatusTooManyRequests, msgRateLimit
	case status == 529 || strings.Contains(msg, "overloaded"):
		return http.StatusServiceUnavailable, msgOverloaded
	default:
		return http.StatusInternalServerError, "Error processing the request: " + err.Error()
	}
}
