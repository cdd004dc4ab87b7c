package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryBackend struct {
	mu     sync.RWMutex
	values *gocache.Cache
	locks  *gocache.Cache
}

// NewMemoryBackend keeps values in process; it serves tests and single node setups.
func NewMemoryBackend() Backend {
	return &memoryBackend{
		values: gocache.New(gocache.NoExpiration, time.Minute),
		locks:  gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func ttlOf(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values.Set(key, value, ttlOf(ttl))
	return nil
}

func (m *memoryBackend) SetMulti(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.values.Set(e.Key, e.Value, ttlOf(e.TTL))
	}
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.values.Delete(k)
	}
	return nil
}

func (m *memoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.values.Items() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memoryBackend) DeletePrefix(ctx context.Context, prefix string) error {
	keys, _ := m.Keys(ctx, prefix)
	return m.Delete(ctx, keys...)
}

func (m *memoryBackend) TryLock(_ context.Context, name, token string, hold time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks.Add(name, token, ttlOf(hold)) == nil, nil
}

func (m *memoryBackend) holds(name, token string) bool {
	v, ok := m.locks.Get(name)
	return ok && v.(string) == token
}

func (m *memoryBackend) Held(_ context.Context, name, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holds(name, token), nil
}

func (m *memoryBackend) SetIfHeld(_ context.Context, name, token string, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.holds(name, token) {
		return false, nil
	}
	m.values.Set(e.Key, e.Value, ttlOf(e.TTL))
	return true, nil
}

func (m *memoryBackend) Unlock(_ context.Context, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holds(name, token) {
		m.locks.Delete(name)
	}
	return nil
}

func (m *memoryBackend) Close() error {
	m.values.Flush()
	m.locks.Flush()
	return nil
}
