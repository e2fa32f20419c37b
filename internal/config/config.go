// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	AppEnv       string
	StoreBackend string
	DBPath       string
	RedisURL     string

	AnthropicAPIKey string
	TranscriptPath  string
	PresetFile      string

	// ChatModel and ChatMaxTokens override the preset file when set; empty
	// or zero leaves the preset (or built-in default) in charge.
	ChatModel     string
	ChatMaxTokens int

	// ChatAPIURL is the base URL the terminal client talks to.
	ChatAPIURL        string
	HTTPClientTimeout time.Duration

	Session         SessionConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// SessionConfig controls per-tab session lifetime.
type SessionConfig struct {
	IdleTTL  time.Duration // evict in-memory managers after this long unused
	StoreTTL time.Duration // delete persisted history untouched for this long
}

// RateLimitConfig controls the chat proxy rate limiter.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls the NDJSON conversation journal.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	port := getEnv("PORT", "8080")
	cfg := &Config{
		Port:              port,
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		AppEnv:            getEnv("APP_ENV", ""),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		DBPath:            getEnv("DB_PATH", "./data/videolearn.db"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/1"),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		ChatModel:         strings.TrimSpace(getEnv("CHAT_MODEL", "")),
		ChatMaxTokens:     getEnvInt("CHAT_MAX_TOKENS", 0),
		TranscriptPath:    getEnv("TRANSCRIPT_PATH", "./transcripcion.py"),
		PresetFile:        getEnv("PRESET_FILE", ""),
		ChatAPIURL:        getEnv("CHAT_API_URL", "http://localhost:"+port),
		HTTPClientTimeout: getEnvDuration("HTTP_CLIENT_TIMEOUT", 60*time.Second),
		Session: SessionConfig{
			IdleTTL:  getEnvDuration("SESSION_IDLE_TTL", 60*time.Minute),
			StoreTTL: getEnvDuration("SESSION_STORE_TTL", 7*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of sqlite, redis, memory (got %q)", c.StoreBackend)
	}
	if c.ChatMaxTokens < 0 {
		return fmt.Errorf("CHAT_MAX_TOKENS must be >= 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.AppEnv != "" {
		return c.AppEnv == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// APIKeyConfigured reports whether the upstream model can be called.
func (c *Config) APIKeyConfigured() bool {
	return strings.TrimSpace(c.AnthropicAPIKey) != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
