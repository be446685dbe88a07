package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value    []byte
	inserted time.Time
	deadline time.Time
}

// memoryStore is the in-process L1 tier. Entries expire at an absolute
// deadline; reads never extend it.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{entries: make(map[string]memEntry), now: now}
}

func (m *memoryStore) get(key string) (memEntry, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.deadline) {
		return memEntry{}, false
	}
	return e, true
}

func (m *memoryStore) set(key string, value []byte, ttl time.Duration) {
	now := m.now()
	cp := make([]byte, len(value))
	copy(cp, value)

	m.mu.Lock()
	m.entries[key] = memEntry{value: cp, inserted: now, deadline: now.Add(ttl)}
	m.mu.Unlock()
}

func (m *memoryStore) del(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// sweep drops every expired entry and returns how many it removed.
func (m *memoryStore) sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.deadline) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

func (m *memoryStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *memoryStore) runSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}
