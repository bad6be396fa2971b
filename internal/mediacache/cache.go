// Package mediacache keeps media search results warm so a reaction can be
// shown the moment the user speaks.
//
// [Cache] is keyed by reaction category and is filled speculatively: from the
// other speaker's speech through the predictor, and from a fixed set of
// common categories when the pipeline is enabled. [QueryCache] is keyed by
// the literal search query and backs the orchestrator's primary media fetch.
package mediacache

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emotive/internal/predict"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/types"
)

const (
	// DefaultTTL is how long a category's results stay valid.
	DefaultTTL = 2 * time.Minute

	// DefaultMaxSize is the maximum number of cached categories.
	DefaultMaxSize = 15

	// DefaultPerCategory is the number of items fetched per category.
	DefaultPerCategory = 4

	// likelyCategories is how many predicted categories PrefetchLikely warms.
	likelyCategories = 3
)

// DefaultWarmCategories are fetched by [Cache.WarmDefaults].
var DefaultWarmCategories = []string{"agreement", "humor", "excitement", "empathy", "thinking"}

var categoryQueries = map[string]string{
	"agreement":    "agree nodding thumbs up",
	"humor":        "laughing funny reaction",
	"excitement":   "excited celebration wow",
	"empathy":      "virtual hug support",
	"thinking":     "thinking hmm pondering",
	"joy":          "happy dance celebration",
	"frustration":  "frustrated facepalm annoyed",
	"skeptical":    "skeptical doubt hmm",
	"surprise":     "surprised shocked wow",
	"appreciation": "thank you applause",
	"cringe":       "cringe awkward yikes",
	"sarcasm":      "eye roll sarcastic sure",
	"sadness":      "sad disappointed",
	"relief":       "relief phew finally",
	"love":         "heart love adorable",
}

// QueryFor maps a reaction category to its media search query. Unknown
// categories search for "<category> reaction".
func QueryFor(category string) string {
	if q, ok := categoryQueries[category]; ok {
		return q
	}
	return category + " reaction"
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries    int      `json:"entries"`
	Pending    int      `json:"pending"`
	Categories []string `json:"categories"`
	Hits       int64    `json:"hits"`
	Misses     int64    `json:"misses"`
	Fetches    int64    `json:"fetches"`
	Failures   int64    `json:"failures"`
}

type entry struct {
	items     []types.MediaItem
	fetchedAt time.Time
}

// Cache holds media items per reaction category. Expired entries are dropped
// lazily on read; when full, the oldest entry is evicted before inserting.
//
// All exported methods are safe for concurrent use.
type Cache struct {
	provider    media.Provider
	predictor   *predict.Predictor
	ttl         time.Duration
	maxSize     int
	perCategory int
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	pending map[string]struct{}
	hits    int64
	misses  int64
	fetches int64
	fails   int64
}

// Option configures a [Cache].
type Option func(*Cache)

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithMaxSize sets the maximum number of cached categories.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithPerCategory sets how many items are fetched per category.
func WithPerCategory(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.perCategory = n
		}
	}
}

// WithPredictor replaces the predictor used by [Cache.PrefetchLikely].
func WithPredictor(p *predict.Predictor) Option {
	return func(c *Cache) { c.predictor = p }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache that fetches from provider. A nil provider yields a
// cache that never fills.
func New(provider media.Provider, opts ...Option) *Cache {
	c := &Cache{
		provider:    provider,
		ttl:         DefaultTTL,
		maxSize:     DefaultMaxSize,
		perCategory: DefaultPerCategory,
		now:         time.Now,
		entries:     make(map[string]entry),
		pending:     make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.predictor == nil {
		c.predictor = predict.New()
	}
	return c
}

// Get returns the cached items for category. The second result is false when
// nothing is cached or the entry has expired.
func (c *Cache) Get(category string) ([]types.MediaItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.getLocked(category)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return items, ok
}

// IsCached reports whether category has a live entry. It does not count as a
// hit or miss.
func (c *Cache) IsCached(category string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.getLocked(category)
	return ok
}

func (c *Cache) getLocked(category string) ([]types.MediaItem, bool) {
	e, ok := c.entries[category]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) > c.ttl {
		delete(c.entries, category)
		return nil, false
	}
	return append([]types.MediaItem(nil), e.items...), true
}

// Prefetch fetches every category that is neither cached nor already being
// fetched, in parallel, and waits for them to finish. Fetch failures are
// logged and swallowed.
func (c *Cache) Prefetch(ctx context.Context, categories []string) {
	if c.provider == nil {
		slog.Debug("mediacache: no media provider, skipping prefetch")
		return
	}

	c.mu.Lock()
	var toFetch []string
	for _, cat := range categories {
		if cat == "" {
			continue
		}
		if _, ok := c.getLocked(cat); ok {
			continue
		}
		if _, busy := c.pending[cat]; busy {
			continue
		}
		c.pending[cat] = struct{}{}
		toFetch = append(toFetch, cat)
	}
	c.mu.Unlock()

	if len(toFetch) == 0 {
		return
	}

	var g errgroup.Group
	for _, cat := range toFetch {
		g.Go(func() error {
			c.fetch(ctx, cat)
			return nil
		})
	}
	_ = g.Wait()
}

// PrefetchLikely predicts the user's likely reactions to what the other
// speaker said and prefetches the top three categories.
func (c *Cache) PrefetchLikely(ctx context.Context, otherTranscript string) {
	cats := c.predictor.Categories(otherTranscript)
	if len(cats) == 0 {
		return
	}
	if len(cats) > likelyCategories {
		cats = cats[:likelyCategories]
	}
	c.Prefetch(ctx, cats)
}

// WarmDefaults prefetches [DefaultWarmCategories].
func (c *Cache) WarmDefaults(ctx context.Context) {
	c.Prefetch(ctx, DefaultWarmCategories)
}

func (c *Cache) fetch(ctx context.Context, category string) {
	defer func() {
		c.mu.Lock()
		delete(c.pending, category)
		c.mu.Unlock()
	}()

	query := QueryFor(category)
	items, err := c.provider.Search(ctx, query, c.perCategory)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if err != nil {
		c.fails++
		slog.Warn("mediacache: prefetch failed", "category", category, "query", query, "err", err)
		return
	}
	if len(items) == 0 {
		return
	}
	if _, exists := c.entries[category]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[category] = entry{items: items, fetchedAt: c.now()}
	slog.Debug("mediacache: prefetched", "category", category, "items", len(items))
}

func (c *Cache) evictOldestLocked() {
	var (
		oldest string
		at     time.Time
	)
	for k, e := range c.entries {
		if oldest == "" || e.fetchedAt.Before(at) || (e.fetchedAt.Equal(at) && k < oldest) {
			oldest, at = k, e.fetchedAt
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}

// Clear drops every cached entry. In-flight fetches still complete and insert.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats returns a snapshot of the cache counters. Categories are sorted.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	cats := make([]string, 0, len(c.entries))
	for k := range c.entries {
		cats = append(cats, k)
	}
	slices.Sort(cats)
	return Stats{
		Entries:    len(c.entries),
		Pending:    len(c.pending),
		Categories: cats,
		Hits:       c.hits,
		Misses:     c.misses,
		Fetches:    c.fetches,
		Failures:   c.fails,
	}
}
