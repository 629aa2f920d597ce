// Package memory keeps artifacts in-memory for tests and development.
package memory

import (
	"context"
	"sync"

	"imagepack/internal/artifact"
)

// Store is a map-backed artifact store with the same read-once semantics as
// the filesystem backend.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put stores a copy of the archive bytes.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[artifact.SanitizeKey(key)] = append([]byte(nil), data...)
	return nil
}

// Get returns and consumes the archive.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clean := artifact.SanitizeKey(key)
	data, ok := s.data[clean]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	delete(s.data, clean)
	return data, nil
}

// Len reports how many artifacts are currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
