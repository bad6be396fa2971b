package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/emotive/pkg/provider/embeddings"
)

// EmbeddingsFallback implements [embeddings.Provider] with automatic failover
// across several endpoints serving the same model. Each endpoint has its own
// circuit breaker.
//
// Vectors from different models are not comparable, so every fallback must
// report the primary's model ID and dimensions.
type EmbeddingsFallback struct {
	group      *FallbackGroup[embeddings.Provider]
	modelID    string
	dimensions int
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates an [EmbeddingsFallback] with primary as the
// preferred endpoint.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg FallbackConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{
		group:      NewFallbackGroup(primary, primaryName, cfg),
		modelID:    primary.ModelID(),
		dimensions: primary.Dimensions(),
	}
}

// AddFallback registers another endpoint. It fails when the endpoint serves a
// different model than the primary.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) error {
	if provider.ModelID() != f.modelID || provider.Dimensions() != f.dimensions {
		return fmt.Errorf("resilience: embeddings fallback %q: model %s/%d does not match primary %s/%d",
			name, provider.ModelID(), provider.Dimensions(), f.modelID, f.dimensions)
	}
	f.group.AddFallback(name, provider)
	return nil
}

// Embed embeds text with the first healthy endpoint.
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch embeds texts with the first healthy endpoint.
func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the shared vector length.
func (f *EmbeddingsFallback) Dimensions() int { return f.dimensions }

// ModelID returns the shared model identifier.
func (f *EmbeddingsFallback) ModelID() string { return f.modelID }

// States returns the breaker state of every endpoint.
func (f *EmbeddingsFallback) States() map[string]State { return f.group.States() }

// Healthy reports whether any endpoint is accepting calls.
func (f *EmbeddingsFallback) Healthy() bool { return f.group.Healthy() }
