// Package ratelimit provides a sliding-window counter behind an injectable
// store. The in-memory store is fine for a single-process deployment; it is
// explicitly not safe for horizontal scaling without an external backend.
package ratelimit

import (
	"sync"
	"time"
)

// Store counts events per key inside a sliding window and reports when the
// window resets.
type Store interface {
	Increment(key string, window time.Duration) (count int, resetTime time.Time)
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string][]time.Time{}, now: time.Now}
}

func (m *MemoryStore) Increment(key string, window time.Duration) (int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)
	kept := m.buckets[key][:0]
	for _, t := range m.buckets[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	m.buckets[key] = kept
	return len(kept), kept[0].Add(window)
}

// Limiter answers allow/deny per {identifier}:{operation} key.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow increments the counter and reports whether the caller is still under
// the limit, plus when the window resets.
func (l *Limiter) Allow(identifier, operation string) (bool, time.Time) {
	count, reset := l.store.Increment(identifier+":"+operation, l.window)
	return count <= l.limit, reset
}
