package app

import (
	"context"
	"errors"

	"github.com/MrWong99/emotive/internal/observe"
	"github.com/MrWong99/emotive/pkg/provider/embeddings"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/types"
)

// record counts one provider call. Cancellations are not provider errors.
func record(ctx context.Context, m *observe.Metrics, provider, kind string, err error) {
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, provider, kind, "ok")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.RecordProviderRequest(ctx, provider, kind, "cancelled")
	default:
		m.RecordProviderRequest(ctx, provider, kind, "error")
		m.RecordProviderError(ctx, provider, kind)
	}
}

// meteredEmbeddings counts requests against an embeddings provider.
type meteredEmbeddings struct {
	embeddings.Provider
	name    string
	metrics *observe.Metrics
}

var _ embeddings.Provider = (*meteredEmbeddings)(nil)

func (p *meteredEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := p.Provider.Embed(ctx, text)
	record(ctx, p.metrics, p.name, "embeddings", err)
	return v, err
}

func (p *meteredEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := p.Provider.EmbedBatch(ctx, texts)
	record(ctx, p.metrics, p.name, "embeddings", err)
	return v, err
}

// meteredMedia counts searches against a media provider and forwards
// analytics when the provider supports them.
type meteredMedia struct {
	media.Provider
	name    string
	metrics *observe.Metrics
}

var (
	_ media.Provider        = (*meteredMedia)(nil)
	_ media.AnalyticsSender = (*meteredMedia)(nil)
)

func (p *meteredMedia) Search(ctx context.Context, query string, limit int) ([]types.MediaItem, error) {
	items, err := p.Provider.Search(ctx, query, limit)
	record(ctx, p.metrics, p.name, "media", err)
	return items, err
}

func (p *meteredMedia) SendAnalytics(ctx context.Context, item types.MediaItem) error {
	as, ok := p.Provider.(media.AnalyticsSender)
	if !ok {
		return nil
	}
	return as.SendAnalytics(ctx, item)
}

// meter wraps the configured providers with request counters.
func (a *App) meter() {
	if p := a.providers.Embeddings; p != nil {
		a.providers.Embeddings = &meteredEmbeddings{Provider: p, name: a.cfg.Providers.Embeddings.Name, metrics: a.metrics}
	}
	if p := a.providers.Media; p != nil {
		a.providers.Media = &meteredMedia{Provider: p, name: a.cfg.Providers.Media.Name, metrics: a.metrics}
	}
}
