// VideoLearn - video transcript chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/videolearn/internal/api"
	"github.com/ashureev/videolearn/internal/composer"
	"github.com/ashureev/videolearn/internal/config"
	"github.com/ashureev/videolearn/internal/conversation"
	"github.com/ashureev/videolearn/internal/convlog"
	"github.com/ashureev/videolearn/internal/domain"
	"github.com/ashureev/videolearn/internal/events"
	"github.com/ashureev/videolearn/internal/identity"
	"github.com/ashureev/videolearn/internal/llm"
	"github.com/ashureev/videolearn/internal/middleware"
	"github.com/ashureev/videolearn/internal/preset"
	"github.com/ashureev/videolearn/internal/session"
	"github.com/ashureev/videolearn/internal/store"
	"github.com/ashureev/videolearn/internal/transcript"
	"github.com/ashureev/videolearn/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreBackend)

	p, err := preset.Load(cfg.PresetFile)
	if err != nil {
		slog.Error("Failed to load preset", "error", err, "path", cfg.PresetFile)
		os.Exit(1)
	}

	text, err := transcript.LoadFile(cfg.TranscriptPath)
	if err != nil {
		slog.Warn("Transcript file not loaded, sessions will ask for a pasted transcript",
			"path", cfg.TranscriptPath, "error", err)
	} else {
		slog.Info("Transcript loaded", "path", cfg.TranscriptPath, "length", len([]rune(text)))
	}

	// Initialize dependencies.
	kv, err := store.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := kv.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected")

	if !cfg.APIKeyConfigured() {
		slog.Warn("ANTHROPIC_API_KEY not set, chat requests will fail")
	}

	journal, err := convlog.New(convlog.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	upstream := llm.NewClient(llm.Options{
		APIKey:     cfg.AnthropicAPIKey,
		Timeout:    cfg.HTTPClientTimeout,
		MaxRetries: -1,
	}, logger)
	chatSvc := api.NewChatService(upstream, transcript.NewStatic(text), p.TranscriptInstruction, cfg.APIKeyConfigured(), logger)

	hub := events.NewHub()
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	registry := session.NewRegistry(func(key session.Key) (*session.Manager, error) {
		bucket := store.NewBucket(kv, key.Namespace())
		return session.NewManager(session.Config{
			UserID:       key.UserID,
			SessionID:    key.SessionID,
			Conversation: conversation.NewStore(bucket, logger),
			Transcript:   transcript.NewSource(chatSvc, bucket, logger),
			Composer:     composer.New(p, cfg.ChatModel, cfg.ChatMaxTokens),
			Transport:    chatSvc,
			Renderer:     session.Renderers{hub.Renderer(key.UserID, key.SessionID)},
			Journal:      journal,
			Welcome:      p.Welcome,
			Logger:       logger,
		}), nil
	}, func(key session.Key) {
		hub.CloseSession(key.UserID, key.SessionID)
	})

	// Initialize handlers.
	chatHandler := api.NewChatHandler(chatSvc, limiter, journal, logger)
	sessionHandler := api.NewSessionHandler(registry, limiter, cfg.IsDevelopment())
	wsHandler := events.NewWebSocketHandler(hub, func(ctx context.Context, userID, sessionID string) (domain.History, error) {
		mgr, err := registry.Get(ctx, session.Key{UserID: userID, SessionID: sessionID})
		if err != nil {
			return nil, err
		}
		return mgr.Snapshot().History, nil
	}, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	chatHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/session", wsHandler.ServeHTTP)

	// Serve embedded widget (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Upstream completions can take a while; WriteTimeout stays above the
	// client timeout. Websocket feeds are hijacked and unaffected.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.HTTPClientTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start TTL worker.
	session.StartTTLWorker(ctx, registry, kv, cfg.Session.IdleTTL, cfg.Session.StoreTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// allowedOrigins permits any origin in development and only the configured
// frontend otherwise.
func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
