package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/agora/pkg/errdefs"
)

const evictInterval = 1 * time.Minute

type memEntry struct {
	value     []byte
	expiresAt time.Time
	lastSeen  time.Time
}

// Memory is the in-process cache backend. Expired entries are dropped
// lazily on read and swept by a janitor; when the entry count exceeds
// maxEntries the janitor trims the least recently seen entries first.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*memEntry
	maxEntries int
	ticker     *time.Ticker
	stopCh     chan struct{}
	now        func() time.Time
}

// NewMemory creates a memory cache. maxEntries <= 0 disables size trimming.
func NewMemory(maxEntries int) *Memory {
	m := &Memory{
		entries:    make(map[string]*memEntry),
		maxEntries: maxEntries,
		ticker:     time.NewTicker(evictInterval),
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
	go m.janitor()
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	ent, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, errdefs.NotFoundf("cache key %s", key)
	}

	now := m.now()
	if now.After(ent.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a Set may have replaced it.
		if cur, ok := m.entries[key]; ok && now.After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, errdefs.NotFoundf("cache key %s", key)
	}

	m.mu.Lock()
	ent.lastSeen = now
	value := ent.value
	m.mu.Unlock()
	return value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := m.now()
	m.mu.Lock()
	m.entries[key] = &memEntry{
		value:     value,
		expiresAt: now.Add(ttl),
		lastSeen:  now,
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
	return nil
}

// Len returns the current entry count, including not-yet-swept expired ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.ticker.Stop()
	close(m.stopCh)
	return nil
}

func (m *Memory) janitor() {
	for {
		select {
		case <-m.ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ent := range m.entries {
		if now.After(ent.expiresAt) {
			delete(m.entries, key)
		}
	}

	if m.maxEntries <= 0 || len(m.entries) <= m.maxEntries {
		return
	}

	// Trim least recently seen until within bounds.
	excess := len(m.entries) - m.maxEntries
	for ; excess > 0; excess-- {
		var oldestKey string
		var oldest time.Time
		for key, ent := range m.entries {
			if oldestKey == "" || ent.lastSeen.Before(oldest) {
				oldestKey = key
				oldest = ent.lastSeen
			}
		}
		delete(m.entries, oldestKey)
	}
}
