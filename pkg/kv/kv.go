// Package kv defines the persistent key-value contract used for small JSON
// blobs such as custom keyword mappings and the preference profile.
//
// Values are opaque byte slices. Implementations must be safe for concurrent
// use. A missing key is reported as [ErrNotFound], never as an empty value.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("kv: key not found")

// Store is the abstraction over any persistent key-value backend.
type Store interface {
	// Get returns the value stored under key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases backend resources.
	Close() error
}

// GetJSON loads key and decodes it into v. It returns [ErrNotFound] unchanged
// so callers can tell "never saved" apart from "corrupt".
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// VectorStore persists named float32 vectors grouped by namespace. The
// semantic matcher stores category centroids under the embedding model ID so
// restarts skip re-embedding the anchor phrases.
type VectorStore interface {
	// LoadVectors returns every vector stored under namespace. An unknown
	// namespace yields an empty map and no error.
	LoadVectors(ctx context.Context, namespace string) (map[string][]float32, error)

	// SaveVectors upserts vecs under namespace.
	SaveVectors(ctx context.Context, namespace string, vecs map[string][]float32) error
}
