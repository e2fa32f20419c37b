package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	updatedAt time.Time
}

// MemoryStore is an in-process KV, used by tests and STORE_BACKEND=memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get reads a value.
func (m *MemoryStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[namespace][key]
	return e.value, ok, nil
}

// Set writes a value.
func (m *MemoryStore) Set(_ context.Context, namespace, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.entries[namespace]
	if !ok {
		ns = make(map[string]memoryEntry)
		m.entries[namespace] = ns
	}
	ns[key] = memoryEntry{value: value, updatedAt: m.now()}
	return nil
}

// Delete removes a value.
func (m *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.entries[namespace]; ok {
		delete(ns, key)
		if len(ns) == 0 {
			delete(m.entries, namespace)
		}
	}
	return nil
}

// CleanupExpired removes namespaces whose newest entry is older than ttl.
func (m *MemoryStore) CleanupExpired(_ context.Context, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-ttl)
	var removed int64
	for nsName, ns := range m.entries {
		if latest(ns).Before(cutoff) {
			removed += int64(len(ns))
			delete(m.entries, nsName)
		}
	}
	return removed, nil
}

func latest(ns map[string]memoryEntry) time.Time {
	var t time.Time
	for _, e := range ns {
		if e.updatedAt.After(t) {
			t = e.updatedAt
		}
	}
	return t
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
