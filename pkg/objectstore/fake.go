package objectstore

import (
	"context"
	"os"
	"sync"
)

// MemStore is an in-memory object store used by tests for the lock,
// leadership, and sync packages in place of a real bucket. It
// implements the same narrow Store interfaces those packages declare.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func (m *MemStore) GetBytes(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errWrap(ErrNotFound, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemStore) PutBytes(ctx context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]byte, len(body))
	copy(data, body)
	m.objects[key] = data
	return nil
}

func (m *MemStore) Download(ctx context.Context, key, path string) error {
	data, err := m.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *MemStore) Upload(ctx context.Context, path, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.PutBytes(ctx, key, data)
}

func (m *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Delete removes key; tests use this to simulate an absent remote
// object without constructing a fresh store.
func (m *MemStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}
