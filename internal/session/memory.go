package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. It is used in tests and by framectl.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	markers map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		markers: make(map[string]time.Time),
		now:     now,
	}
}

// Get returns a copy of the live entry at key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true, nil
}

// Put stores a copy of data until now+ttl.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, ttl time.Duration) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{data: buf, expiresAt: m.now().Add(ttl)}
	return nil
}

// MarkOnce implements Store.
func (m *MemoryStore) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.markers[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.markers[key] = now.Add(ttl)
	return true, nil
}

// DeleteExpired drops expired entries and markers, returning how many were removed.
func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	for k, exp := range m.markers {
		if !now.Before(exp) {
			delete(m.markers, k)
			n++
		}
	}
	return n, nil
}
