// Package store provides durable key-value storage for tab sessions.
package store

import (
	"context"
	"time"
)

// Keys used inside a session namespace.
const (
	KeyChatHistory = "chatHistory"
	KeyTranscript  = "videoTranscription"
)

// KV is string-valued key-value storage partitioned by namespace.
// A namespace is one tab session.
type KV interface {
	// Get returns the value stored under key. found is false when absent.
	Get(ctx context.Context, namespace, key string) (value string, found bool, err error)

	// Set stores value under key, overwriting prior contents.
	Set(ctx context.Context, namespace, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// CleanupExpired removes namespaces with no write for longer than ttl.
	// Keys of one namespace expire together.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Bucket binds a KV to one namespace.
type Bucket struct {
	kv        KV
	namespace string
}

// NewBucket returns a Bucket scoped to namespace.
func NewBucket(kv KV, namespace string) Bucket {
	return Bucket{kv: kv, namespace: namespace}
}

// Namespace returns the bound namespace.
func (b Bucket) Namespace() string { return b.namespace }

// Get reads key from the bound namespace.
func (b Bucket) Get(ctx context.Context, key string) (string, bool, error) {
	return b.kv.Get(ctx, b.namespace, key)
}

// Set writes key in the bound namespace.
func (b Bucket) Set(ctx context.Context, key, value string) error {
	return b.kv.Set(ctx, b.namespace, key, value)
}

// Delete removes key from the bound namespace.
func (b Bucket) Delete(ctx context.Context, key string) error {
	return b.kv.Delete(ctx, b.namespace, key)
}
