package annotations

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process repository for local/dev use. It keeps
// the encoded document so loads never share state with earlier saves.
type MemoryRepository struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(_ context.Context) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return Store{}, nil
	}
	store, err := decodeDocument(r.data)
	if err != nil {
		return nil, &CorruptStoreError{Source: "memory", Err: err}
	}
	return store, nil
}

func (r *MemoryRepository) Save(_ context.Context, store Store) error {
	data, err := encodeDocument(store)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = data
	return nil
}

func (r *MemoryRepository) Mode() string { return "memory" }

func (r *MemoryRepository) Close() error { return nil }
