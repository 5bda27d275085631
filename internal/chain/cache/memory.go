package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process cache backend, used when Redis is not configured.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Balance
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]Balance),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, identity string) (Balance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[identity]
	if !ok || m.now().Sub(entry.FetchedAt) >= m.ttl {
		return Balance{}, false, nil
	}
	return entry, true, nil
}

func (m *Memory) Set(_ context.Context, b Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[b.Identity] = b
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Balance)
	return nil
}
