// Package mock provides an in-memory test double for kv.Store and
// kv.VectorStore with injectable failures.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/emotive/pkg/kv"
)

var (
	_ kv.Store       = (*Store)(nil)
	_ kv.VectorStore = (*Store)(nil)
)

// Store keeps values in maps. The zero value is ready to use.
type Store struct {
	mu      sync.Mutex
	values  map[string][]byte
	vectors map[string]map[string][]float32

	// GetErr and SetErr, if non-nil, are returned by every Get / Set.
	GetErr error
	SetErr error

	// SetCalls counts Set invocations, including failed ones.
	SetCalls int
	// SaveVectorsCalls counts SaveVectors invocations.
	SaveVectorsCalls int
}

// Get implements kv.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	v, ok := s.values[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements kv.Store.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls++
	if s.SetErr != nil {
		return s.SetErr
	}
	if s.values == nil {
		s.values = make(map[string][]byte)
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Put seeds a raw value without counting as a Set call.
func (s *Store) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string][]byte)
	}
	s.values[key] = value
}

// LoadVectors implements kv.VectorStore.
func (s *Store) LoadVectors(_ context.Context, namespace string) (map[string][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	out := make(map[string][]float32, len(s.vectors[namespace]))
	for k, v := range s.vectors[namespace] {
		out[k] = v
	}
	return out, nil
}

// SaveVectors implements kv.VectorStore.
func (s *Store) SaveVectors(_ context.Context, namespace string, vecs map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveVectorsCalls++
	if s.SetErr != nil {
		return s.SetErr
	}
	if s.vectors == nil {
		s.vectors = make(map[string]map[string][]float32)
	}
	if s.vectors[namespace] == nil {
		s.vectors[namespace] = make(map[string][]float32)
	}
	for k, v := range vecs {
		s.vectors[namespace][k] = v
	}
	return nil
}

// Close implements kv.Store.
func (s *Store) Close() error { return nil }
