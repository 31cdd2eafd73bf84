// Package memory implements an in-memory content store.
//
// All content lives in a map guarded by an RWMutex. Data is copied on both
// read and write so callers can never race the store through shared slices.
// Intended for tests, development, and ephemeral deployments; everything is
// lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/mover/pkg/store"
)

// MemoryStore is a volatile, map-backed content store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[store.ID][]byte
}

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		data: make(map[store.ID][]byte),
	}
}

// Get returns a copy of the content stored under id.
func (s *MemoryStore) Get(ctx context.Context, id store.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a copy of data under id.
func (s *MemoryStore) Put(ctx context.Context, id store.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = stored

	return nil
}

// Exists reports whether id is present.
func (s *MemoryStore) Exists(ctx context.Context, id store.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[id]
	return ok, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
