// VideoLearn - terminal chat client
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/videolearn/internal/composer"
	"github.com/ashureev/videolearn/internal/config"
	"github.com/ashureev/videolearn/internal/conversation"
	"github.com/ashureev/videolearn/internal/identity"
	"github.com/ashureev/videolearn/internal/preset"
	"github.com/ashureev/videolearn/internal/session"
	"github.com/ashureev/videolearn/internal/store"
	"github.com/ashureev/videolearn/internal/transcript"
	"github.com/ashureev/videolearn/internal/transport"
)

type options struct {
	server    string
	dbPath    string
	sessionID string
	verbose   bool
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := options{}
	rootCmd := &cobra.Command{
		Use:   "videolearn",
		Short: "Chat with the video assistant from the terminal",
		Long: `Starts an interactive chat session against a running VideoLearn server.

History and a pasted transcript are kept in a local SQLite file, one
conversation per --session name.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cfg, opts)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", cfg.ChatAPIURL, "VideoLearn server base URL")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log diagnostics to stderr")
	rootCmd.Flags().StringVar(&opts.dbPath, "db", "./data/videolearn-cli.db", "Local history database")
	rootCmd.Flags().StringVar(&opts.sessionID, "session", identity.DefaultSessionIDValue, "Conversation name")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Show the server status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := transport.NewClient(opts.server, cfg.HTTPClientTimeout, newLogger(opts.verbose))
			h, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\napi key configured: %t\ntranscript loaded: %t (%d chars)\n",
				h.Status, h.APIKeyConfigured, h.TranscriptionLoaded, h.TranscriptionLength)
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runChat(ctx context.Context, cfg *config.Config, opts options) error {
	logger := newLogger(opts.verbose)
	slog.SetDefault(logger)

	p, err := preset.Load(cfg.PresetFile)
	if err != nil {
		return err
	}

	kv, err := store.NewSQLite(opts.dbPath)
	if err != nil {
		return fmt.Errorf("open local history: %w", err)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			logger.Error("Failed to close local history", "error", closeErr)
		}
	}()

	client := transport.NewClient(opts.server, cfg.HTTPClientTimeout, logger)
	if h, err := client.Health(ctx); err != nil {
		logger.Warn("Server health check failed", "error", err)
	} else if !h.APIKeyConfigured {
		fmt.Fprintln(os.Stderr, "warning: the server has no API key configured; replies will fail")
	}

	key := session.Key{UserID: "local", SessionID: opts.sessionID}
	bucket := store.NewBucket(kv, key.Namespace())
	out := newTerminalRenderer(os.Stdout)
	mgr := session.NewManager(session.Config{
		UserID:       key.UserID,
		SessionID:    key.SessionID,
		Conversation: conversation.NewStore(bucket, logger),
		Transcript:   transcript.NewSource(client, bucket, logger),
		Composer:     composer.New(p, cfg.ChatModel, cfg.ChatMaxTokens),
		Transport:    client,
		Renderer:     out,
		Welcome:      p.Welcome,
		Logger:       logger,
	})

	if err := mgr.Restore(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "assistant> %s\n(type /help for commands)\n", mgr.Welcome())

	return runREPL(ctx, os.Stdin, out, mgr, cfg.IsDevelopment())
}
