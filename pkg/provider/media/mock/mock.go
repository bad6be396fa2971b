// Package mock provides a test double for the media.Provider interface.
//
// Results are canned per query, with an optional fallback function and an
// optional artificial latency that honours context cancellation.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/types"
)

var (
	_ media.Provider        = (*Provider)(nil)
	_ media.AnalyticsSender = (*Provider)(nil)
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	Query string
	Limit int
}

// Provider is a mock implementation of media.Provider.
type Provider struct {
	mu sync.Mutex

	// Results maps an exact query to its items. Checked first.
	Results map[string][]types.MediaItem

	// SearchFunc produces items when Results has no entry. Optional.
	SearchFunc func(query string, limit int) []types.MediaItem

	// SearchErr, if non-nil, is returned by every Search.
	SearchErr error

	// Delay makes Search block for the given duration or until ctx is done.
	Delay time.Duration

	SearchCalls    []SearchCall
	AnalyticsCalls []types.MediaItem
}

// Search records the call and returns the configured items, truncated to limit.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]types.MediaItem, error) {
	p.mu.Lock()
	p.SearchCalls = append(p.SearchCalls, SearchCall{Query: query, Limit: limit})
	delay, err := p.Delay, p.SearchErr
	items, ok := p.Results[query]
	if !ok && p.SearchFunc != nil {
		items = p.SearchFunc(query, limit)
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return append([]types.MediaItem(nil), items...), nil
}

// SendAnalytics records the selected item.
func (p *Provider) SendAnalytics(_ context.Context, item types.MediaItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnalyticsCalls = append(p.AnalyticsCalls, item)
	return nil
}

// Queries returns the queries searched so far, in call order.
func (p *Provider) Queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SearchCalls))
	for i, c := range p.SearchCalls {
		out[i] = c.Query
	}
	return out
}

// SearchCount returns the number of Search calls.
func (p *Provider) SearchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SearchCalls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls = nil
	p.AnalyticsCalls = nil
}

// Analytics returns a copy of the items passed to SendAnalytics.
func (p *Provider) Analytics() []types.MediaItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.MediaItem(nil), p.AnalyticsCalls...)
}

// Calls returns a copy of the recorded Search calls.
func (p *Provider) Calls() []SearchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SearchCall(nil), p.SearchCalls...)
}
