package tracker

import (
	"context"
	"sync"

	"github.com/alchemiser/tradengine/internal/tracker/store"
)

// memStore is an in-memory fake of store.Store for tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, gzipEncoded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gzipEncoded {
		key += ".gz"
	}
	m.objects[key] = data
	m.puts++
	return nil
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}
