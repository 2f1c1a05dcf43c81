package store

import (
	"context"
	"sync"
	"time"
)

type memItem struct {
	value     []byte
	expiresAt time.Time // zero: без TTL
}

// MemoryKV: L1 в памяти процесса (аналог sessionStorage)
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]memItem), now: time.Now}
}

func (m *MemoryKV) Name() string  { return "memory" }
func (m *MemoryKV) Durable() bool { return false }

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !it.expiresAt.IsZero() && m.now().After(it.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Clear(_ context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]memItem)
	m.mu.Unlock()
	return nil
}

// Len количество ключей (включая просроченные, которые еще не вычищены)
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
