// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. The semantic
// matcher embeds category anchor phrases once at load time and every final
// transcript at match time, then ranks categories by cosine similarity.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider share the same dimensionality and must
// be deterministic for identical input within a process lifetime. Vectors from
// different models must never be compared with each other.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one provider call. The i-th result corresponds
	// to texts[i]. On error the whole slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by the model.
	Dimensions() int

	// ModelID returns the provider-specific model identifier. Persisted
	// centroids are keyed by it.
	ModelID() string
}
