// Package semantic matches transcripts to taxonomy categories by embedding
// similarity.
//
// On [Matcher.Load] every category's anchor phrases are embedded and averaged
// into a centroid. [Matcher.Match] embeds the transcript (through a bounded
// LRU cache) and ranks categories by cosine similarity. Loading is
// single-flight and may be retried after a failure. When a [kv.VectorStore]
// is configured, centroids computed for the same embedding model are reused
// across restarts.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/emotive/internal/taxonomy"
	"github.com/MrWong99/emotive/pkg/kv"
	"github.com/MrWong99/emotive/pkg/provider/embeddings"
	"github.com/MrWong99/emotive/pkg/types"
)

// Defaults.
const (
	DefaultThreshold = 0.55
	DefaultCacheSize = 100
)

var (
	// ErrDimensionMismatch is returned by [Cosine] for vectors of unequal length.
	ErrDimensionMismatch = errors.New("semantic: vector dimension mismatch")

	// ErrNotLoaded is returned by operations that need centroids before
	// [Matcher.Load] has completed.
	ErrNotLoaded = errors.New("semantic: matcher not loaded")
)

// Match is a category whose centroid is similar enough to a transcript.
type Match struct {
	// Category is the "context.name" taxonomy key.
	Category      string
	Similarity    float64
	Emoji         string
	MediaPatterns []string
}

// ProgressFunc receives load progress as a percentage and a status line.
type ProgressFunc func(percent int, status string)

type centroid struct {
	cat taxonomy.Category
	vec []float32
}

// Matcher is safe for concurrent use.
type Matcher struct {
	provider  embeddings.Provider
	tax       *taxonomy.Taxonomy
	store     kv.VectorStore
	progress  ProgressFunc
	cacheSize int

	cache *lru.Cache[string, []float32]
	group singleflight.Group

	loading atomic.Bool

	mu        sync.RWMutex
	centroids []centroid
	loaded    bool
	threshold float64
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithTaxonomy replaces the built-in taxonomy.
func WithTaxonomy(t *taxonomy.Taxonomy) Option {
	return func(m *Matcher) { m.tax = t }
}

// WithVectorStore persists centroids keyed by the provider's model ID.
func WithVectorStore(s kv.VectorStore) Option {
	return func(m *Matcher) { m.store = s }
}

// WithThreshold sets the default similarity threshold, clamped to [0, 1].
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = types.Clamp01(t) }
}

// WithCacheSize sets the transcript embedding cache capacity.
func WithCacheSize(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.cacheSize = n
		}
	}
}

// WithProgress registers a load progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Matcher) { m.progress = fn }
}

// New creates an unloaded Matcher backed by provider.
func New(provider embeddings.Provider, opts ...Option) *Matcher {
	m := &Matcher{
		provider:  provider,
		tax:       taxonomy.Default(),
		threshold: DefaultThreshold,
		cacheSize: DefaultCacheSize,
	}
	for _, o := range opts {
		o(m)
	}
	// lru.New only fails for non-positive sizes.
	m.cache, _ = lru.New[string, []float32](m.cacheSize)
	return m
}

// IsLoaded reports whether centroids are available.
func (m *Matcher) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// IsLoading reports whether a load is in flight.
func (m *Matcher) IsLoading() bool {
	return m.loading.Load()
}

// Threshold returns the default similarity threshold.
func (m *Matcher) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// SetThreshold updates the default similarity threshold, clamped to [0, 1].
func (m *Matcher) SetThreshold(t float64) {
	m.mu.Lock()
	m.threshold = types.Clamp01(t)
	m.mu.Unlock()
}

// Load computes category centroids. It is idempotent; concurrent callers
// share a single in-flight load. A failed load leaves the matcher unloaded
// and may be retried.
func (m *Matcher) Load(ctx context.Context) error {
	if m.IsLoaded() {
		return nil
	}
	_, err, _ := m.group.Do("load", func() (any, error) {
		if m.IsLoaded() {
			return nil, nil
		}
		m.loading.Store(true)
		defer m.loading.Store(false)

		start := time.Now()
		cs, err := m.buildCentroids(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.centroids = cs
		m.loaded = true
		m.mu.Unlock()

		m.report(100, "semantic matcher ready")
		slog.Info("semantic: loaded", "categories", len(cs), "model", m.provider.ModelID(), "duration", time.Since(start))
		return nil, nil
	})
	return err
}

func (m *Matcher) buildCentroids(ctx context.Context) ([]centroid, error) {
	cats := m.tax.All()
	namespace := m.provider.ModelID()

	if m.store != nil {
		m.report(10, "loading stored centroids")
		stored, err := m.store.LoadVectors(ctx, namespace)
		if err != nil {
			slog.Warn("semantic: failed to load stored centroids", "namespace", namespace, "err", err)
		} else if cs, ok := fromStored(cats, stored); ok {
			return cs, nil
		}
	}

	out := make([]centroid, 0, len(cats))
	fresh := make(map[string][]float32, len(cats))
	for i, c := range cats {
		vecs, err := m.provider.EmbedBatch(ctx, c.Anchors)
		if err != nil {
			return nil, fmt.Errorf("semantic: embed anchors for %s: %w", c.Key, err)
		}
		mean, err := Mean(vecs)
		if err != nil {
			return nil, fmt.Errorf("semantic: centroid for %s: %w", c.Key, err)
		}
		out = append(out, centroid{cat: c, vec: mean})
		fresh[c.Key] = mean
		m.report(10+(i+1)*85/len(cats), fmt.Sprintf("building embeddings: %d/%d", i+1, len(cats)))
	}

	if m.store != nil {
		if err := m.store.SaveVectors(ctx, namespace, fresh); err != nil {
			slog.Warn("semantic: failed to store centroids", "namespace", namespace, "err", err)
		}
	}
	return out, nil
}

// fromStored uses stored centroids only when every category is present with
// a consistent dimension.
func fromStored(cats []taxonomy.Category, stored map[string][]float32) ([]centroid, bool) {
	if len(stored) == 0 {
		return nil, false
	}
	out := make([]centroid, 0, len(cats))
	dims := -1
	for _, c := range cats {
		v, ok := stored[c.Key]
		if !ok || len(v) == 0 || (dims >= 0 && len(v) != dims) {
			return nil, false
		}
		dims = len(v)
		out = append(out, centroid{cat: c, vec: v})
	}
	return out, true
}

func (m *Matcher) report(pct int, status string) {
	if m.progress != nil {
		m.progress(pct, status)
	}
}

// Match returns every category whose similarity to text reaches threshold,
// most similar first. A negative threshold selects the configured default.
// An unloaded matcher yields no matches and no error.
func (m *Matcher) Match(ctx context.Context, text string, threshold float64) ([]Match, error) {
	m.mu.RLock()
	loaded, cs := m.loaded, m.centroids
	if threshold < 0 {
		threshold = m.threshold
	}
	m.mu.RUnlock()

	if !loaded || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	vec, err := m.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, c := range cs {
		sim, err := Cosine(vec, c.vec)
		if err != nil {
			return nil, fmt.Errorf("semantic: compare %s: %w", c.cat.Key, err)
		}
		if sim >= threshold {
			out = append(out, Match{
				Category:      c.cat.Key,
				Similarity:    sim,
				Emoji:         c.cat.Emoji,
				MediaPatterns: append([]string(nil), c.cat.MediaPatterns...),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// TopMatch returns the best match, or ok=false when nothing reaches threshold.
func (m *Matcher) TopMatch(ctx context.Context, text string, threshold float64) (Match, bool, error) {
	ms, err := m.Match(ctx, text, threshold)
	if err != nil || len(ms) == 0 {
		return Match{}, false, err
	}
	return ms[0], true, nil
}

// Centroid returns the centroid for a category key.
func (m *Matcher) Centroid(key string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	for _, c := range m.centroids {
		if c.cat.Key == key {
			return append([]float32(nil), c.vec...), nil
		}
	}
	return nil, fmt.Errorf("semantic: unknown category %q", key)
}

func (m *Matcher) embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}
	v, err := m.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed transcript: %w", err)
	}
	m.cache.Add(key, v)
	return v, nil
}

// CacheLen returns the number of cached transcript embeddings.
func (m *Matcher) CacheLen() int {
	return m.cache.Len()
}

// ClearCache drops every cached transcript embedding.
func (m *Matcher) ClearCache() {
	m.cache.Purge()
}

// PreloadWhenIdle starts a load after delay unless ctx is cancelled first.
// The returned channel receives whether the matcher ended up loaded and is
// then closed. If the matcher is already loaded or loading it reports the
// current state immediately.
func (m *Matcher) PreloadWhenIdle(ctx context.Context, delay time.Duration) <-chan bool {
	done := make(chan bool, 1)
	if m.IsLoaded() || m.IsLoading() {
		done <- m.IsLoaded()
		close(done)
		return done
	}
	go func() {
		defer close(done)
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			done <- false
			return
		case <-t.C:
		}
		if err := m.Load(ctx); err != nil {
			slog.Warn("semantic: preload failed", "err", err)
			done <- false
			return
		}
		done <- true
	}()
	return done
}

// Close discards centroids and cached embeddings. The matcher can be loaded
// again afterwards.
func (m *Matcher) Close() error {
	m.mu.Lock()
	m.centroids = nil
	m.loaded = false
	m.mu.Unlock()
	m.cache.Purge()
	return nil
}

// ── Vector math ──────────────────────────────────────────────────────────────

// Cosine returns the cosine similarity of a and b. Zero vectors have
// similarity 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Mean returns the element-wise mean of vecs, which must share a dimension.
func Mean(vecs [][]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, errors.New("semantic: mean of no vectors")
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(v), dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vecs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}
