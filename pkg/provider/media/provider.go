// Package media defines the Provider interface for GIF and sticker search
// backends.
//
// The orchestrator issues a handful of short queries per final transcript and
// the speculative cache issues one query per predicted category. A provider
// that cannot reach its backend returns an error; callers treat that as zero
// results for the query and carry on.
//
// Implementations must be safe for concurrent use.
package media

import (
	"context"
	"errors"

	"github.com/MrWong99/emotive/pkg/types"
)

// ErrEmptyQuery is returned by Search when the query is blank.
var ErrEmptyQuery = errors.New("media: empty query")

// Provider is the abstraction over any media search backend.
type Provider interface {
	// Search returns at most limit items for query, ordered by relevance.
	// A limit of zero or less selects the provider's default.
	Search(ctx context.Context, query string, limit int) ([]types.MediaItem, error)
}

// AnalyticsSender is implemented by providers that want to be notified when
// the user picks one of their items.
type AnalyticsSender interface {
	SendAnalytics(ctx context.Context, item types.MediaItem) error
}
