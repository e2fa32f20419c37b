package store

import (
	"context"
	"fmt"

	"github.com/ashureev/videolearn/internal/config"
)

// Open builds the KV selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (KV, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		return NewSQLite(cfg.DBPath)
	case config.StoreRedis:
		return NewRedis(ctx, cfg.RedisURL, cfg.Session.StoreTTL)
	case config.StoreMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
