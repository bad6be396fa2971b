package mediacache

import (
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/emotive/pkg/types"
)

const (
	// DefaultQueryTTL is how long a query's results stay valid.
	DefaultQueryTTL = time.Minute

	// DefaultQueryMaxSize is the maximum number of cached queries.
	DefaultQueryMaxSize = 20
)

// QueryCache memoises media search results per normalised query string.
// It is safe for concurrent use.
type QueryCache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewQueryCache creates a QueryCache. Non-positive arguments select
// [DefaultQueryTTL] and [DefaultQueryMaxSize]. A nil clock uses time.Now.
func NewQueryCache(ttl time.Duration, maxSize int, now func() time.Time) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultQueryMaxSize
	}
	if now == nil {
		now = time.Now
	}
	return &QueryCache{ttl: ttl, maxSize: maxSize, now: now, entries: make(map[string]entry)}
}

func queryKey(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Get returns the cached results for query, if still valid.
func (q *QueryCache) Get(query string) ([]types.MediaItem, bool) {
	key := queryKey(query)
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok {
		return nil, false
	}
	if q.now().Sub(e.fetchedAt) > q.ttl {
		delete(q.entries, key)
		return nil, false
	}
	return append([]types.MediaItem(nil), e.items...), true
}

// Put stores results for query. When the cache is full, expired entries are
// dropped first and then the oldest remaining ones.
func (q *QueryCache) Put(query string, items []types.MediaItem) {
	key := queryKey(query)
	if key == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[key] = entry{items: append([]types.MediaItem(nil), items...), fetchedAt: q.now()}
	if len(q.entries) > q.maxSize {
		q.cleanupLocked()
	}
}

func (q *QueryCache) cleanupLocked() {
	now := q.now()
	for k, e := range q.entries {
		if now.Sub(e.fetchedAt) > q.ttl {
			delete(q.entries, k)
		}
	}
	for len(q.entries) > q.maxSize {
		var (
			oldest string
			at     time.Time
		)
		for k, e := range q.entries {
			if oldest == "" || e.fetchedAt.Before(at) || (e.fetchedAt.Equal(at) && k < oldest) {
				oldest, at = k, e.fetchedAt
			}
		}
		delete(q.entries, oldest)
	}
}

// Len returns the number of stored queries, including expired ones not yet
// dropped.
func (q *QueryCache) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear drops every entry.
func (q *QueryCache) Clear() {
	q.mu.Lock()
	q.entries = make(map[string]entry)
	q.mu.Unlock()
}
