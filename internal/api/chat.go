package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/videolearn/internal/composer"
	"github.com/ashureev/videolearn/internal/convlog"
	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/identity"
	"github.com/ashureev/videolearn/internal/llm"
	"github.com/ashureev/videolearn/internal/transcript"
	"github.com/ashureev/videolearn/internal/transport"
)

// ErrNoAPIKey is returned when the upstream API key is not configured.
var ErrNoAPIKey = errors.New("API key not configured on the server")

// Completer calls the upstream model.
type Completer interface {
	Complete(ctx context.Context, req domain.OutboundRequest) (domain.ChatReply, error)
}

// ChatService forwards chat requests upstream, adding the server-held
// transcript when the caller asks for it.
type ChatService struct {
	completer   Completer
	transcript  transcript.Static
	instruction string
	apiKey      bool
	logger      *slog.Logger
}

// NewChatService creates a ChatService. instruction is appended after an
// injected server transcript.
func NewChatService(completer Completer, static transcript.Static, instruction string, apiKeyConfigured bool, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		completer:   completer,
		transcript:  static,
		instruction: instruction,
		apiKey:      apiKeyConfigured,
		logger:      logger,
	}
}

// Complete runs one upstream completion.
func (s *ChatService) Complete(ctx context.Context, req domain.OutboundRequest) (domain.ChatReply, error) {
	if !s.apiKey {
		return domain.ChatReply{}, ErrNoAPIKey
	}
	injected := false
	if req.UseAutoTranscription && s.transcript.Text() != "" {
		system := composer.InjectServerTranscript(req.System, s.transcript.Text(), s.instruction)
		injected = system != req.System
		req.System = system
	}

	s.logger.Info("chat request",
		"model", req.Model,
		"messages", len(req.Messages),
		"has_system", req.System != "",
		"server_transcript", injected)

	return s.completer.Complete(ctx, req)
}

// Send implements session.Transport for sessions hosted by this server.
// Errors are classified the way the HTTP client would see them.
func (s *ChatService) Send(ctx context.Context, req domain.OutboundRequest) (domain.ChatReply, error) {
	reply, err := s.Complete(ctx, req)
	if err != nil {
		status, msg := s.errorStatus(err)
		return domain.ChatReply{}, transport.Classify(status, msg, err)
	}
	return reply, nil
}

// FetchTranscription implements transcript.Fetcher.
func (s *ChatService) FetchTranscription(ctx context.Context) (domain.TranscriptionPayload, error) {
	return s.transcript.FetchTranscription(ctx)
}

func (s *ChatService) errorStatus(err error) (int, string) {
	if errors.Is(err, ErrNoAPIKey) {
		return http.StatusInternalServerError, "API key not configured on the server. Set ANTHROPIC_API_KEY."
	}
	return llm.ErrorStatus(err)
}

// ChatHandler serves the chat proxy, transcription and health endpoints.
type ChatHandler struct {
	svc     *ChatService
	limiter *RateLimiter
	journal convlog.Logger
	logger  *slog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *ChatService, limiter *RateLimiter, journal convlog.Logger, logger *slog.Logger) *ChatHandler {
	if journal == nil {
		journal = convlog.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{svc: svc, limiter: limiter, journal: journal, logger: logger}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Get("/transcription", h.Transcription)
		r.Get("/health", h.Health)
	})
}

type chatRequest struct {
	Messages             []domain.Message `json:"messages"`
	System               string           `json:"system"`
	Model                string           `json:"model"`
	MaxTokens            int              `json:"max_tokens"`
	UseAutoTranscription *bool            `json:"use_auto_transcription"`
}

// toOutbound fills the defaults of an absent field. A missing flag means
// the server transcript may be used.
func (c chatRequest) toOutbound() domain.OutboundRequest {
	req := domain.OutboundRequest{
		Messages:             c.Messages,
		System:               c.System,
		Model:                c.Model,
		MaxTokens:            c.MaxTokens,
		UseAutoTranscription: true,
	}
	if c.UseAutoTranscription != nil {
		req.UseAutoTranscription = *c.UseAutoTranscription
	}
	if req.Model == "" {
		req.Model = composer.DefaultModel
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = composer.DefaultMaxTokens
	}
	return req
}

// Chat proxies one completion request.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	key := userID
	if key == "" {
		key = identity.IPFromRequest(r)
	}
	if h.limiter != nil && !h.limiter.Allow(key) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var body chatRequest
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, "no data received")
		return
	}
	if len(body.Messages) == 0 {
		Error(w, http.StatusBadRequest, "at least one message is required")
		return
	}
	req := body.toOutbound()

	h.journal.Log(convlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_request",
		ContentRaw: req.Messages[len(req.Messages)-1].Content,
		Meta:       map[string]any{"request_id": chiMiddleware.GetReqID(r.Context()), "model": req.Model},
	})

	start := time.Now()
	reply, err := h.svc.Complete(r.Context(), req)
	if err != nil {
		status, msg := h.svc.errorStatus(err)
		h.logger.Error("chat proxy failed", "error", err, "status", status, "user_id", userID)
		Error(w, status, msg)
		return
	}

	h.logger.Info("chat proxy completed",
		"user_id", userID,
		"session_id", sessionID,
		"duration", time.Since(start),
		"input_tokens", reply.Usage.InputTokens,
		"output_tokens", reply.Usage.OutputTokens)
	h.journal.Log(convlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "chat_reply",
		ContentRaw: reply.Text(),
		Meta:       map[string]any{"stop_reason": reply.StopReason},
	})
	JSON(w, http.StatusOK, reply)
}

// Transcription returns the server-held transcript.
func (h *ChatHandler) Transcription(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.svc.transcript.Payload())
}

// Health reports configuration status.
func (h *ChatHandler) Health(w http.ResponseWriter, _ *http.Request) {
	p := h.svc.transcript.Payload()
	JSON(w, http.StatusOK, domain.Health{
		Status:              "ok",
		Message:             "VideoLearn server running",
		APIKeyConfigured:    h.svc.apiKey,
		TranscriptionLoaded: p.Loaded,
		TranscriptionLength: p.Length,
	})
}
