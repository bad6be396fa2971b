package resilience

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/types"
)

// MediaFallback implements [media.Provider] with failover across several media
// search backends, each behind its own circuit breaker. Searches aborted by
// their context do not count as backend failures and are not retried.
type MediaFallback struct {
	group *FallbackGroup[media.Provider]
}

var (
	_ media.Provider        = (*MediaFallback)(nil)
	_ media.AnalyticsSender = (*MediaFallback)(nil)
)

// NewMediaFallback creates a [MediaFallback] with primary as the preferred
// backend.
func NewMediaFallback(primary media.Provider, primaryName string, cfg FallbackConfig) *MediaFallback {
	return &MediaFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional media backend.
func (f *MediaFallback) AddFallback(name string, provider media.Provider) {
	f.group.AddFallback(name, provider)
}

// Search queries the first healthy backend.
func (f *MediaFallback) Search(ctx context.Context, query string, limit int) ([]types.MediaItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, media.ErrEmptyQuery
	}
	items, err := ExecuteWithResult(f.group, func(p media.Provider) ([]types.MediaItem, error) {
		return p.Search(ctx, query, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: media search: %w", err)
	}
	return items, nil
}

// States returns the breaker state of every backend.
func (f *MediaFallback) States() map[string]State { return f.group.States() }

// Healthy reports whether any backend is accepting calls.
func (f *MediaFallback) Healthy() bool { return f.group.Healthy() }

// SendAnalytics forwards the event to the first backend that supports
// analytics. Analytics events carry their own callback URL, so any such
// backend can deliver it. Without one this is a no-op.
func (f *MediaFallback) SendAnalytics(ctx context.Context, item types.MediaItem) error {
	for _, e := range f.group.entries {
		if as, ok := e.value.(media.AnalyticsSender); ok {
			if err := as.SendAnalytics(ctx, item); err != nil {
				return fmt.Errorf("resilience: media analytics via %s: %w", e.name, err)
			}
			return nil
		}
	}
	return nil
}
