package session

import (
	"context"
	"sync"
	"time"
)

// Key identifies one browser tab of one user.
type Key struct {
	UserID    string
	SessionID string
}

// Namespace is the storage namespace of the tab.
func (k Key) Namespace() string {
	return k.UserID + ":" + k.SessionID
}

// Factory builds an unrestored Manager for a tab.
type Factory func(key Key) (*Manager, error)

// EvictCallback is called after a manager leaves the registry.
type EvictCallback func(key Key)

type entry struct {
	mgr      *Manager
	once     sync.Once
	err      error
	lastUsed time.Time
}

// Registry keeps one Manager per tab, created and restored on first use.
type Registry struct {
	factory Factory
	onEvict EvictCallback
	now     func() time.Time

	mu      sync.Mutex
	entries map[Key]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, onEvict EvictCallback) *Registry {
	return &Registry{
		factory: factory,
		onEvict: onEvict,
		now:     time.Now,
		entries: make(map[Key]*entry),
	}
}

// Get returns the restored Manager for key, creating it if needed.
func (r *Registry) Get(ctx context.Context, key Key) (*Manager, error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		mgr, err := r.factory(key)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		e = &entry{mgr: mgr}
		r.entries[key] = e
	}
	e.lastUsed = r.now()
	r.mu.Unlock()

	e.once.Do(func() {
		e.err = e.mgr.Restore(ctx)
	})
	if e.err != nil {
		r.remove(key, e)
		return nil, e.err
	}
	return e.mgr, nil
}

// Touch marks key as used now.
func (r *Registry) Touch(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.lastUsed = r.now()
	}
}

// Len returns the number of live managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SweepIdle drops managers unused for longer than idle. Managers with an
// operation in flight are kept.
func (r *Registry) SweepIdle(idle time.Duration) []Key {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var evicted []Key
	for key, e := range r.entries {
		if !e.lastUsed.Before(cutoff) {
			continue
		}
		if st := e.mgr.State(); st == StateSubmitting || st == StateRestoring || st == StateResetting {
			continue
		}
		delete(r.entries, key)
		evicted = append(evicted, key)
	}
	r.mu.Unlock()

	if r.onEvict != nil {
		for _, key := range evicted {
			r.onEvict(key)
		}
	}
	return evicted
}

func (r *Registry) remove(key Key, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[key]; ok && cur == e {
		delete(r.entries, key)
	}
}
