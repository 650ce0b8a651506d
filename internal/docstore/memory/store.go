// Package memory provides an in-memory document store.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/wolfeidau/metsync/internal/docstore"
)

// Store implements docstore.Store using a map.
// Data is lost on restart.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

var _ docstore.Store = (*Store)(nil)

// New creates an empty in-memory document store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := docstore.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key] = bytes.Clone(data)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[key]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, key)
	return nil
}

func (s *Store) Driver() docstore.Driver { return docstore.DriverMemory }

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
