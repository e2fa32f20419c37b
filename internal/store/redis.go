package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "videolearn:"

// RedisStore implements KV on Redis. Entries expire through key TTLs; each
// namespace keeps an index set so a write refreshes every sibling key.
type RedisStore struct {
	rc  redis.UniversalClient
	ttl time.Duration
}

// NewRedis parses a redis:// URL and connects.
// ttl is applied to every write; zero keeps keys forever.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s := NewRedisWithClient(redis.NewClient(opt), ttl)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rc redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rc: rc, ttl: ttl}
}

func (s *RedisStore) key(namespace, key string) string {
	return redisKeyPrefix + namespace + ":" + key
}

func (s *RedisStore) indexKey(namespace string) string {
	return redisKeyPrefix + "idx|" + namespace
}

// Get reads a value.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	value, err := s.rc.Get(ctx, s.key(namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// Set writes a value and refreshes the TTL of the whole namespace.
func (s *RedisStore) Set(ctx context.Context, namespace, key, value string) error {
	index := s.indexKey(namespace)
	_, err := s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(namespace, key), value, s.ttl)
		pipe.SAdd(ctx, index, key)
		if s.ttl > 0 {
			pipe.Expire(ctx, index, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if s.ttl <= 0 {
		return nil
	}

	siblings, err := s.rc.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("redis list namespace: %w", err)
	}
	_, err = s.rc.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range siblings {
			if k != key {
				pipe.Expire(ctx, s.key(namespace, k), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis refresh namespace ttl: %w", err)
	}
	return nil
}

// Delete removes a value.
func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(namespace, key))
		pipe.SRem(ctx, s.indexKey(namespace), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// CleanupExpired is a no-op; Redis evicts keys through their TTL.
func (s *RedisStore) CleanupExpired(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rc.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rc.Close()
}
