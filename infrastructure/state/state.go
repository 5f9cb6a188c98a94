// Package state provides the persistence backend an autosave scheduler
// writes encoded save containers through when the target is not the local
// filesystem (infrastructure/pacing.StateBackendSaveFunc). Backends store
// opaque container bytes keyed by the autosave key; they never interpret
// the DMSG payload.
package state

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load for a key with no stored snapshot.
var ErrNotFound = errors.New("key not found")

// PersistenceBackend is the byte sink an encoded save container is written
// to. Implementations must be safe for concurrent use: the autosave cron
// goroutine writes while diagnostics or a restore path may read.
type PersistenceBackend interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close(ctx context.Context) error
}

// MemoryBackend keeps encoded save containers in process memory. Retention
// is bounded to the most recent maxEntries snapshots so a long-running
// kernel autosaving on a tight cron cannot grow the process without limit;
// the oldest snapshot is evicted first.
type MemoryBackend struct {
	mu         sync.RWMutex
	data       map[string][]byte
	order      []string
	maxEntries int
}

// NewMemoryBackend creates an empty in-memory backend retaining at most
// maxEntries snapshots. maxEntries <= 0 means unbounded.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	return &MemoryBackend{
		data:       make(map[string][]byte),
		maxEntries: maxEntries,
	}
}

// Save stores data under key, evicting the oldest snapshot once the
// retention bound is exceeded. Overwriting an existing key refreshes its
// position in the eviction order.
func (m *MemoryBackend) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		m.removeFromOrder(key)
	}
	m.data[key] = data
	m.order = append(m.order, key)
	for m.maxEntries > 0 && len(m.order) > m.maxEntries {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.data, oldest)
	}
	return nil
}

// Load returns the snapshot stored under key, or ErrNotFound.
func (m *MemoryBackend) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Delete removes the snapshot stored under key, if any.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		m.removeFromOrder(key)
		delete(m.data, key)
	}
	return nil
}

// List returns every stored key with the given prefix, oldest first.
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.order))
	for _, k := range m.order {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close discards all stored snapshots.
func (m *MemoryBackend) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	m.order = nil
	return nil
}

func (m *MemoryBackend) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
