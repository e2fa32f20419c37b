package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/identity"
	"github.com/ashureev/videolearn/internal/session"
	"github.com/ashureev/videolearn/internal/transcript"
	"github.com/ashureev/videolearn/internal/transport"
)

// SessionHandler exposes the per-tab session manager.
type SessionHandler struct {
	registry *session.Registry
	limiter  *RateLimiter
	isDev    bool
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(registry *session.Registry, limiter *RateLimiter, isDev bool) *SessionHandler {
	return &SessionHandler{registry: registry, limiter: limiter, isDev: isDev}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/messages", h.Submit)
		r.Post("/reset", h.Reset)
		r.Put("/transcript", h.SetTranscript)
	})
}

func (h *SessionHandler) manager(w http.ResponseWriter, r *http.Request) (*session.Manager, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	key := session.Key{UserID: userID, SessionID: identity.SessionIDFromContext(r.Context())}
	mgr, err := h.registry.Get(r.Context(), key)
	if err != nil {
		slog.Error("Failed to open session", "error", err, "user_id", key.UserID, "session_id", key.SessionID)
		Error(w, http.StatusInternalServerError, "failed to open session")
		return nil, false
	}
	return mgr, true
}

// Get returns the session snapshot, restoring the session on first use.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, mgr.Snapshot())
}

type submitRequest struct {
	Message string `json:"message"`
}

type submitResponse struct {
	Turn domain.Turn `json:"turn"`
}

type transportErrorResponse struct {
	Error       string `json:"error"`
	Kind        string `json:"kind"`
	Remediation string `json:"remediation"`
}

// Submit sends one user message.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	if h.limiter != nil && !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	turn, err := mgr.SubmitTurn(r.Context(), req.Message)
	// A slow upstream call must not leave the tab looking idle to the sweeper.
	h.registry.Touch(session.Key{UserID: userID, SessionID: identity.SessionIDFromContext(r.Context())})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, submitResponse{Turn: turn})
}

// Reset clears the tab's history.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := mgr.Reset(r.Context()); err != nil {
		h.writeSessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, mgr.Snapshot())
}

type transcriptRequest struct {
	Text string `json:"text"`
}

// SetTranscript stores a pasted transcript.
func (h *SessionHandler) SetTranscript(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(w, r)
	if !ok {
		return
	}

	var req transcriptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := mgr.SetManualTranscript(r.Context(), req.Text); err != nil {
		h.writeSessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, mgr.Snapshot())
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		Error(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, transcript.ErrAlreadyAutoLoaded):
		Error(w, http.StatusConflict, "already_auto_loaded")
	case errors.Is(err, session.ErrBusy):
		Error(w, http.StatusConflict, "busy")
	case errors.Is(err, session.ErrInvalidState):
		Error(w, http.StatusConflict, "invalid_state")
	default:
		if te, ok := transport.AsError(err); ok {
			JSON(w, http.StatusBadGateway, transportErrorResponse{
				Error:       te.Error(),
				Kind:        string(te.Kind),
				Remediation: te.Remediation(h.isDev),
			})
			return
		}
		slog.Error("Session operation failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
