// Package keyword maps spoken words and phrases to reaction suggestions.
//
// A [Matcher] merges an immutable built-in keyword table with user-defined
// custom mappings, matches normalised transcripts by phrase, exact word and
// fuzzy word (prefix ratio, then Levenshtein similarity, then optionally a
// Double Metaphone sound-alike pass), and suppresses keywords that fired
// within the cooldown window. It also builds media search queries for a
// transcript.
package keyword

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/emotive/internal/notify"
	"github.com/MrWong99/emotive/pkg/kv"
	"github.com/MrWong99/emotive/pkg/types"
)

// StorageKey is the kv key under which custom mappings are persisted.
const StorageKey = "speechReactionMappings"

// Defaults for the tunables.
const (
	DefaultCooldown       = 5 * time.Second
	DefaultMinConfidence  = 0.5
	DefaultMaxSuggestions = 3

	prefixThreshold      = 0.7
	levenshteinThreshold = 0.8
	phoneticThreshold    = 0.8
	phoneticMinLength    = 4
)

// ErrEmptyKeyword is returned when a custom mapping has a blank keyword.
var ErrEmptyKeyword = errors.New("keyword must not be empty")

// MappingChange describes a mutation of the custom mapping table.
type MappingChange struct {
	Keyword string
	Mapping Mapping
	Removed bool
	Cleared bool
}

// Matcher is safe for concurrent use. A single lock guards the custom table
// and the cooldown registry, so a cooldown check and its re-arm are atomic
// for the duration of one [Matcher.Match] call.
type Matcher struct {
	mu             sync.Mutex
	custom         map[string]Mapping
	cooldowns      map[string]time.Time
	cooldown       time.Duration
	minConfidence  float64
	maxSuggestions int
	phonetic       bool

	store   kv.Store
	now     func() time.Time
	rnd     func() float64
	changes notify.Broadcaster[MappingChange]
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithStore persists custom mappings to s.
func WithStore(s kv.Store) Option {
	return func(m *Matcher) { m.store = s }
}

// WithClock overrides the time source used for cooldowns.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// WithRand overrides the random source used by [Matcher.MediaQueries]. The
// function must return values in [0, 1).
func WithRand(rnd func() float64) Option {
	return func(m *Matcher) { m.rnd = rnd }
}

// WithCooldown sets the per-keyword cooldown. Negative values clamp to 0.
func WithCooldown(d time.Duration) Option {
	return func(m *Matcher) { m.cooldown = max(0, d) }
}

// WithMinConfidence sets the acceptance threshold, clamped to [0, 1].
func WithMinConfidence(c float64) Option {
	return func(m *Matcher) { m.minConfidence = types.Clamp01(c) }
}

// WithMaxSuggestions caps the result count. Values below 1 clamp to 1.
func WithMaxSuggestions(n int) Option {
	return func(m *Matcher) { m.maxSuggestions = max(1, n) }
}

// WithPhoneticMatching enables a sound-alike pass for words of four or more
// letters that neither prefix nor edit distance could place ("grate" ->
// "great").
func WithPhoneticMatching(enabled bool) Option {
	return func(m *Matcher) { m.phonetic = enabled }
}

// New creates a Matcher with only the built-in table loaded. Call
// [Matcher.LoadCustomMappings] to restore persisted custom mappings.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		custom:         make(map[string]Mapping),
		cooldowns:      make(map[string]time.Time),
		cooldown:       DefaultCooldown,
		minConfidence:  DefaultMinConfidence,
		maxSuggestions: DefaultMaxSuggestions,
		now:            time.Now,
		rnd:            rand.Float64,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// LoadCustomMappings restores custom mappings from the store. Corrupt data is
// logged and replaced by an empty table; only store I/O failures are returned.
func (m *Matcher) LoadCustomMappings(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	raw, err := m.store.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keyword: load custom mappings: %w", err)
	}
	loaded := make(map[string]Mapping)
	if err := json.Unmarshal(raw, &loaded); err != nil {
		slog.Warn("keyword: discarding corrupt custom mappings", "bytes", len(raw), "err", err)
		loaded = make(map[string]Mapping)
	}

	m.mu.Lock()
	m.custom = make(map[string]Mapping, len(loaded))
	for k, v := range loaded {
		if k = normalizeKey(k); k != "" {
			m.custom[k] = v
		}
	}
	m.mu.Unlock()
	return nil
}

// Match returns up to the configured maximum of suggestions for transcript,
// highest confidence first. Keywords still in cooldown are skipped; every
// keyword that passes the cooldown check is re-armed immediately.
func (m *Matcher) Match(transcript string) []types.Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	return m.matchLocked(transcript, now, func(k string) bool { return m.armLocked(k, now) })
}

// Preview matches like [Matcher.Match] but ignores and leaves untouched the
// cooldown registry. Each keyword is reported at most once.
func (m *Matcher) Preview(transcript string) []types.Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	return m.matchLocked(transcript, m.now(), func(k string) bool {
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

// matchLocked runs the phrase, exact and fuzzy stages. admit decides whether
// a matched keyword is reported.
func (m *Matcher) matchLocked(transcript string, now time.Time, admit func(keyword string) bool) []types.Suggestion {
	normalized := Normalize(transcript)
	if normalized == "" {
		return nil
	}
	tokens := strings.Fields(normalized)

	keys := m.keysLocked()
	var out []types.Suggestion

	for _, k := range keys {
		if strings.Contains(k, " ") && strings.Contains(normalized, k) && admit(k) {
			out = append(out, newSuggestion(k, m.lookupLocked(k), 1.0, now))
		}
	}

	for _, w := range tokens {
		if mp, ok := m.mappingLocked(w); ok {
			if admit(w) {
				out = append(out, newSuggestion(w, mp, 1.0, now))
			}
			continue
		}
		k, conf, ok := m.fuzzyLocked(w, keys)
		if ok && admit(k) {
			out = append(out, newSuggestion(k, m.lookupLocked(k), conf, now))
		}
	}

	kept := out[:0]
	for _, s := range out {
		if s.Confidence >= m.minConfidence {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })
	if len(kept) > m.maxSuggestions {
		kept = kept[:m.maxSuggestions]
	}
	return kept
}

// armLocked reports whether keyword is outside its cooldown and, if so,
// records now as its last trigger.
func (m *Matcher) armLocked(keyword string, now time.Time) bool {
	if last, ok := m.cooldowns[keyword]; ok && now.Sub(last) < m.cooldown {
		return false
	}
	m.cooldowns[keyword] = now
	return true
}

// fuzzyLocked finds the first key whose prefix ratio reaches 0.7, else the
// first whose Levenshtein similarity reaches 0.8, else (when enabled) the
// best sound-alike.
func (m *Matcher) fuzzyLocked(word string, keys []string) (string, float64, bool) {
	wl := len([]rune(word))
	for _, k := range keys {
		if strings.HasPrefix(k, word) || strings.HasPrefix(word, k) {
			kl := len([]rune(k))
			if r := float64(min(wl, kl)) / float64(max(wl, kl)); r >= prefixThreshold {
				return k, r, true
			}
		}
	}
	for _, k := range keys {
		maxLen := max(wl, len([]rune(k)))
		sim := 1 - float64(matchr.Levenshtein(word, k))/float64(maxLen)
		if sim >= levenshteinThreshold {
			return k, sim, true
		}
	}
	if m.phonetic {
		return soundAlike(word, keys)
	}
	return "", 0, false
}

func soundAlike(word string, keys []string) (string, float64, bool) {
	if len([]rune(word)) < phoneticMinLength {
		return "", 0, false
	}
	wp, ws := matchr.DoubleMetaphone(word)
	best, bestScore := "", 0.0
	for _, k := range keys {
		if strings.Contains(k, " ") || len([]rune(k)) < phoneticMinLength {
			continue
		}
		kp, ks := matchr.DoubleMetaphone(k)
		if !codesShare(wp, ws, kp, ks) {
			continue
		}
		if jw := matchr.JaroWinkler(word, k, false); jw >= phoneticThreshold && jw > bestScore {
			best, bestScore = k, jw
		}
	}
	return best, bestScore, best != ""
}

func codesShare(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}

// keysLocked returns built-in keys in declaration order followed by custom
// keys that do not shadow a built-in, sorted.
func (m *Matcher) keysLocked() []string {
	keys := make([]string, 0, len(builtins)+len(m.custom))
	for _, b := range builtins {
		keys = append(keys, b.keyword)
	}
	extra := make([]string, 0, len(m.custom))
	for k := range m.custom {
		if _, ok := builtinIndex[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func (m *Matcher) mappingLocked(keyword string) (Mapping, bool) {
	if mp, ok := m.custom[keyword]; ok {
		return mp, true
	}
	mp, ok := builtinIndex[keyword]
	return mp, ok
}

func (m *Matcher) lookupLocked(keyword string) Mapping {
	mp, _ := m.mappingLocked(keyword)
	return mp
}

func newSuggestion(keyword string, mp Mapping, confidence float64, now time.Time) types.Suggestion {
	return types.Suggestion{
		Keyword:     keyword,
		Emoji:       mp.Emoji,
		Text:        mp.Text,
		Style:       mp.Style,
		SearchQuery: mp.SearchQuery,
		Confidence:  confidence,
		Source:      types.SourceRule,
		Timestamp:   now,
	}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// ── Custom mappings ──────────────────────────────────────────────────────────

// AddCustomMapping adds or replaces a custom mapping and persists the custom
// table. The in-memory change is kept even when persisting fails.
func (m *Matcher) AddCustomMapping(ctx context.Context, keyword string, mp Mapping) error {
	k := normalizeKey(keyword)
	if k == "" {
		return fmt.Errorf("keyword: add mapping: %w", ErrEmptyKeyword)
	}
	m.mu.Lock()
	m.custom[k] = mp
	snapshot := m.customSnapshotLocked()
	m.mu.Unlock()

	err := m.persist(ctx, snapshot)
	m.changes.Publish(MappingChange{Keyword: k, Mapping: mp})
	return err
}

// RemoveMapping deletes a custom mapping. Built-in keywords are never removed;
// removing one that is not custom is a no-op.
func (m *Matcher) RemoveMapping(ctx context.Context, keyword string) error {
	k := normalizeKey(keyword)
	m.mu.Lock()
	if _, ok := m.custom[k]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.custom, k)
	snapshot := m.customSnapshotLocked()
	m.mu.Unlock()

	err := m.persist(ctx, snapshot)
	m.changes.Publish(MappingChange{Keyword: k, Removed: true})
	return err
}

// ClearCustomMappings removes every custom mapping.
func (m *Matcher) ClearCustomMappings(ctx context.Context) error {
	m.mu.Lock()
	m.custom = make(map[string]Mapping)
	m.mu.Unlock()

	err := m.persist(ctx, map[string]Mapping{})
	m.changes.Publish(MappingChange{Cleared: true})
	return err
}

// HasMapping reports whether keyword is mapped in the merged table.
func (m *Matcher) HasMapping(keyword string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.mappingLocked(normalizeKey(keyword))
	return ok
}

// Lookup returns the effective mapping for keyword.
func (m *Matcher) Lookup(keyword string) (Mapping, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mappingLocked(normalizeKey(keyword))
}

// CustomMappings returns a copy of the custom table.
func (m *Matcher) CustomMappings() map[string]Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customSnapshotLocked()
}

// SubscribeChanges delivers custom mapping mutations.
func (m *Matcher) SubscribeChanges(buffer int) (<-chan MappingChange, func()) {
	return m.changes.Subscribe(buffer)
}

func (m *Matcher) customSnapshotLocked() map[string]Mapping {
	cp := make(map[string]Mapping, len(m.custom))
	for k, v := range m.custom {
		cp[k] = v
	}
	return cp
}

func (m *Matcher) persist(ctx context.Context, table map[string]Mapping) error {
	if m.store == nil {
		return nil
	}
	if err := kv.SetJSON(ctx, m.store, StorageKey, table); err != nil {
		slog.Warn("keyword: failed to persist custom mappings", "err", err)
		return fmt.Errorf("keyword: persist custom mappings: %w", err)
	}
	return nil
}

// ── Cooldown & tunables ──────────────────────────────────────────────────────

// ResetCooldown clears the cooldown for keyword, or for every keyword when
// keyword is empty.
func (m *Matcher) ResetCooldown(keyword string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k := normalizeKey(keyword); k != "" {
		delete(m.cooldowns, k)
		return
	}
	m.cooldowns = make(map[string]time.Time)
}

// SetCooldown updates the cooldown period. Negative values clamp to 0.
func (m *Matcher) SetCooldown(d time.Duration) {
	m.mu.Lock()
	m.cooldown = max(0, d)
	m.mu.Unlock()
}

// Cooldown returns the cooldown period.
func (m *Matcher) Cooldown() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldown
}

// SetMinConfidence updates the acceptance threshold, clamped to [0, 1].
func (m *Matcher) SetMinConfidence(c float64) {
	m.mu.Lock()
	m.minConfidence = types.Clamp01(c)
	m.mu.Unlock()
}

// MinConfidence returns the acceptance threshold.
func (m *Matcher) MinConfidence() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minConfidence
}

// SetMaxSuggestions updates the result cap. Values below 1 clamp to 1.
func (m *Matcher) SetMaxSuggestions(n int) {
	m.mu.Lock()
	m.maxSuggestions = max(1, n)
	m.mu.Unlock()
}

// MaxSuggestions returns the result cap.
func (m *Matcher) MaxSuggestions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSuggestions
}
