package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/emotive/pkg/provider/embeddings"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/provider/transcript"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is a name-indexed set of constructors for one provider kind.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	embeddings factories[embeddings.Provider]
	media      factories[media.Provider]
	transcript factories[transcript.Source]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		embeddings: newFactories[embeddings.Provider]("embeddings"),
		media:      newFactories[media.Provider]("media"),
		transcript: newFactories[transcript.Source]("transcript"),
	}
}

// RegisterEmbeddings registers an embeddings provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEmbeddings(name string, factory Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings.m[name] = factory
}

// RegisterMedia registers a media search provider factory under name.
func (r *Registry) RegisterMedia(name string, factory Factory[media.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media.m[name] = factory
}

// RegisterTranscript registers a transcript source factory under name.
func (r *Registry) RegisterTranscript(name string, factory Factory[transcript.Source]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.m[name] = factory
}

// CreateEmbeddings instantiates the embeddings provider registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embeddings.create(entry)
}

// CreateMedia instantiates the media provider registered under entry.Name.
func (r *Registry) CreateMedia(entry ProviderEntry) (media.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.media.create(entry)
}

// CreateTranscript instantiates the transcript source registered under
// entry.Name.
func (r *Registry) CreateTranscript(entry ProviderEntry) (transcript.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcript.create(entry)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"embeddings": r.embeddings.names(),
		"media":      r.media.names(),
		"transcript": r.transcript.names(),
	}
}
