// Package preference learns which reactions a user picks and which they
// skip, and re-ranks future suggestions accordingly.
//
// The profile is stored under a single key of a [kv.Store] and saved after
// every mutation. Transcripts are never stored; history entries only keep a
// short non-cryptographic hash of the context.
package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/MrWong99/emotive/internal/notify"
	"github.com/MrWong99/emotive/pkg/kv"
	"github.com/MrWong99/emotive/pkg/types"
)

// StorageKey is the kv key of the persisted profile.
const StorageKey = "reactionPreferences_v1"

// Version is the only export document version accepted by [Tracker.Import].
const Version = 1

// Selection sources.
const (
	SourceEmoji = "emoji"
	SourceMedia = "media"
)

const (
	defaultHistorySize  = 100
	defaultSignificance = 3
	skipWeight          = 0.3
	mediaStyleTags      = 3
	defaultLimit        = 5
)

// ErrUnsupportedVersion is returned by [Tracker.Import] for documents with a
// version other than [Version].
var ErrUnsupportedVersion = errors.New("preference: unsupported document version")

// HistoryEntry records one selection without the transcript itself.
type HistoryEntry struct {
	ContextHash      string    `json:"context_hash"`
	SelectedEmoji    string    `json:"selected_emoji,omitempty"`
	SelectedCategory string    `json:"selected_category,omitempty"`
	Source           string    `json:"source"`
	Timestamp        time.Time `json:"timestamp"`
}

// Profile is the learned preference state.
type Profile struct {
	FavoriteEmojis      map[string]int     `json:"favorite_emojis"`
	FavoriteCategories  map[string]int     `json:"favorite_categories"`
	FavoriteMediaStyles map[string]int     `json:"favorite_media_styles"`
	AvoidedReactions    map[string]float64 `json:"avoided_reactions"`
	History             []HistoryEntry     `json:"history"`
	LastUpdated         time.Time          `json:"last_updated,omitzero"`
}

// Document is the portable export format.
type Document struct {
	Profile
	ExportedAt time.Time `json:"exported_at"`
	Version    int       `json:"version"`
}

// SelectionContext describes what was on screen when the user picked.
type SelectionContext struct {
	// Transcript that produced the suggestions. Only its hash is stored.
	Transcript string

	// Suggestions shown alongside the selected one.
	Suggestions []types.Suggestion

	// Category of the selection, used for media picks.
	Category string
}

// Count pairs a key with its selection count.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Stats summarises a profile.
type Stats struct {
	TotalSelections      int       `json:"total_selections"`
	UniqueEmojisUsed     int       `json:"unique_emojis_used"`
	UniqueCategoriesUsed int       `json:"unique_categories_used"`
	TopEmoji             string    `json:"top_emoji,omitempty"`
	TopCategory          string    `json:"top_category,omitempty"`
	LastUpdated          time.Time `json:"last_updated,omitzero"`
}

// Update is published after every profile mutation.
type Update struct {
	Source   string
	Keyword  string
	Emoji    string
	Reset    bool
	Imported bool
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu           sync.RWMutex
	profile      Profile
	store        kv.Store
	now          func() time.Time
	historySize  int
	significance int
	updates      notify.Broadcaster[Update]
}

// Option configures a [Tracker].
type Option func(*Tracker)

// WithStore persists the profile to s.
func WithStore(s kv.Store) Option {
	return func(t *Tracker) { t.store = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithHistorySize bounds the selection history.
func WithHistorySize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.historySize = n
		}
	}
}

// WithSignificance sets how many selections an emoji or category needs before
// it influences ranking. Skips need twice as many.
func WithSignificance(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.significance = n
		}
	}
}

// New creates a Tracker with an empty profile. Call [Tracker.Load] to restore
// the persisted one.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		profile:      emptyProfile(),
		now:          time.Now,
		historySize:  defaultHistorySize,
		significance: defaultSignificance,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func emptyProfile() Profile {
	return Profile{
		FavoriteEmojis:      map[string]int{},
		FavoriteCategories:  map[string]int{},
		FavoriteMediaStyles: map[string]int{},
		AvoidedReactions:    map[string]float64{},
	}
}

// Load restores the persisted profile. Corrupt data is logged and replaced by
// an empty profile; only store failures are returned.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	raw, err := t.store.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("preference: load: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("preference: discarding corrupt profile", "err", err)
		p = emptyProfile()
	}
	t.mu.Lock()
	t.profile = normalize(p)
	t.mu.Unlock()
	return nil
}

// LogSelection records that the user picked selected out of sc.Suggestions.
// Every other shown suggestion with a different emoji counts as a partial
// skip. The profile is saved before returning; a save error is returned but
// the in-memory update is kept.
func (t *Tracker) LogSelection(ctx context.Context, sc SelectionContext, selected types.Suggestion, source string) error {
	if source == "" {
		source = SourceEmoji
	}
	t.mu.Lock()
	t.logLocked(sc, selected.Emoji, selected.Keyword, source)
	snapshot := t.cloneLocked()
	t.mu.Unlock()

	err := t.save(ctx, snapshot)
	t.updates.Publish(Update{Source: source, Keyword: selected.Keyword, Emoji: selected.Emoji})
	return err
}

// LogMediaSelection records a picked media item: its first three tags count
// as style preferences, then the pick is logged as a selection of
// sc.Category with no emoji.
func (t *Tracker) LogMediaSelection(ctx context.Context, sc SelectionContext, item types.MediaItem) error {
	t.mu.Lock()
	for i, tag := range item.Tags {
		if i == mediaStyleTags {
			break
		}
		if tag = strings.TrimSpace(tag); tag != "" {
			t.profile.FavoriteMediaStyles[tag]++
		}
	}
	t.logLocked(sc, "", sc.Category, SourceMedia)
	snapshot := t.cloneLocked()
	t.mu.Unlock()

	err := t.save(ctx, snapshot)
	t.updates.Publish(Update{Source: SourceMedia, Keyword: sc.Category})
	return err
}

func (t *Tracker) logLocked(sc SelectionContext, emoji, keyword, source string) {
	now := t.now()
	p := &t.profile
	if emoji != "" {
		p.FavoriteEmojis[emoji]++
	}
	if keyword != "" {
		p.FavoriteCategories[keyword]++
	}
	p.History = append(p.History, HistoryEntry{
		ContextHash:      HashContext(sc.Transcript),
		SelectedEmoji:    emoji,
		SelectedCategory: keyword,
		Source:           source,
		Timestamp:        now,
	})
	if over := len(p.History) - t.historySize; over > 0 {
		p.History = append([]HistoryEntry(nil), p.History[over:]...)
	}
	for _, s := range sc.Suggestions {
		if s.Emoji != "" && s.Emoji != emoji {
			p.AvoidedReactions[s.Emoji] += skipWeight
		}
	}
	p.LastUpdated = now
}

// AdjustRanking returns copies of suggestions re-scored by the profile and
// sorted by confidence, highest first. PreferenceBoost records the signed
// adjustment.
func (t *Tracker) AdjustRanking(suggestions []types.Suggestion) []types.Suggestion {
	if len(suggestions) == 0 {
		return suggestions
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	sig := t.significance
	out := make([]types.Suggestion, len(suggestions))
	for i, s := range suggestions {
		var boost float64
		if n := t.profile.FavoriteEmojis[s.Emoji]; s.Emoji != "" && n >= sig {
			boost += min(0.2, float64(n)*0.02)
		}
		if n := t.profile.FavoriteCategories[s.Keyword]; s.Keyword != "" && n >= sig {
			boost += min(0.15, float64(n)*0.015)
		}
		if n := t.profile.AvoidedReactions[s.Emoji]; s.Emoji != "" && n >= float64(sig*2) {
			boost -= min(0.15, n*0.01)
		}
		s.Confidence = types.Clamp01(s.Confidence + boost)
		s.PreferenceBoost = boost
		out[i] = s
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// FavoriteEmojis returns the most selected emojis. A non-positive limit
// defaults to 5.
func (t *Tracker) FavoriteEmojis(limit int) []Count {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return topCounts(t.profile.FavoriteEmojis, limit)
}

// FavoriteCategories returns the most selected categories.
func (t *Tracker) FavoriteCategories(limit int) []Count {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return topCounts(t.profile.FavoriteCategories, limit)
}

// PreferredMediaStyles returns the most frequent tags of picked media.
func (t *Tracker) PreferredMediaStyles(limit int) []Count {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return topCounts(t.profile.FavoriteMediaStyles, limit)
}

// PrefersEmoji reports whether emoji has been selected often enough to
// influence ranking.
func (t *Tracker) PrefersEmoji(emoji string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.profile.FavoriteEmojis[emoji] >= t.significance
}

// AvoidsEmoji reports whether emoji is skipped more than twice as often as it
// is selected, with a significant number of skips.
func (t *Tracker) AvoidsEmoji(emoji string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	skips := t.profile.AvoidedReactions[emoji]
	picks := float64(t.profile.FavoriteEmojis[emoji])
	return skips > picks*2 && skips >= float64(t.significance)
}

// Stats summarises the profile.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Stats{
		TotalSelections:      len(t.profile.History),
		UniqueEmojisUsed:     len(t.profile.FavoriteEmojis),
		UniqueCategoriesUsed: len(t.profile.FavoriteCategories),
		LastUpdated:          t.profile.LastUpdated,
	}
	if top := topCounts(t.profile.FavoriteEmojis, 1); len(top) > 0 {
		s.TopEmoji = top[0].Key
	}
	if top := topCounts(t.profile.FavoriteCategories, 1); len(top) > 0 {
		s.TopCategory = top[0].Key
	}
	return s
}

// Profile returns a deep copy of the current profile.
func (t *Tracker) Profile() Profile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cloneLocked()
}

// Reset clears the profile and saves the empty state.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.profile = emptyProfile()
	snapshot := t.cloneLocked()
	t.mu.Unlock()

	err := t.save(ctx, snapshot)
	t.updates.Publish(Update{Reset: true})
	return err
}

// Export returns the profile as a versioned document.
func (t *Tracker) Export() Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Document{Profile: t.cloneLocked(), ExportedAt: t.now(), Version: Version}
}

// Import replaces the profile with doc. Documents of another version are
// rejected with [ErrUnsupportedVersion] and leave the profile untouched.
func (t *Tracker) Import(ctx context.Context, doc Document) error {
	if doc.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	p := normalize(doc.Profile)
	p.History = append([]HistoryEntry(nil), p.History...)

	t.mu.Lock()
	p.LastUpdated = t.now()
	if over := len(p.History) - t.historySize; over > 0 {
		p.History = p.History[over:]
	}
	t.profile = p
	snapshot := t.cloneLocked()
	t.mu.Unlock()

	err := t.save(ctx, snapshot)
	t.updates.Publish(Update{Imported: true})
	return err
}

// Subscribe delivers an [Update] after every mutation.
func (t *Tracker) Subscribe(buffer int) (<-chan Update, func()) {
	return t.updates.Subscribe(buffer)
}

func (t *Tracker) save(ctx context.Context, p Profile) error {
	if t.store == nil {
		return nil
	}
	if err := kv.SetJSON(ctx, t.store, StorageKey, p); err != nil {
		slog.Warn("preference: failed to save profile", "err", err)
		return fmt.Errorf("preference: save: %w", err)
	}
	return nil
}

func (t *Tracker) cloneLocked() Profile {
	p := t.profile
	return Profile{
		FavoriteEmojis:      cloneMap(p.FavoriteEmojis),
		FavoriteCategories:  cloneMap(p.FavoriteCategories),
		FavoriteMediaStyles: cloneMap(p.FavoriteMediaStyles),
		AvoidedReactions:    cloneMap(p.AvoidedReactions),
		History:             append([]HistoryEntry(nil), p.History...),
		LastUpdated:         p.LastUpdated,
	}
}

func normalize(p Profile) Profile {
	if p.FavoriteEmojis == nil {
		p.FavoriteEmojis = map[string]int{}
	}
	if p.FavoriteCategories == nil {
		p.FavoriteCategories = map[string]int{}
	}
	if p.FavoriteMediaStyles == nil {
		p.FavoriteMediaStyles = map[string]int{}
	}
	if p.AvoidedReactions == nil {
		p.AvoidedReactions = map[string]float64{}
	}
	return p
}

func cloneMap[V int | float64](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// topCounts sorts by count descending, then key ascending.
func topCounts(m map[string]int, limit int) []Count {
	if limit <= 0 {
		limit = defaultLimit
	}
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HashContext returns a 32-bit polynomial string hash of the trimmed,
// lower-cased text over its UTF-16 code units, in signed hexadecimal. Empty
// text hashes to "".
func HashContext(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return ""
	}
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	if h < 0 {
		return "-" + strconv.FormatInt(-int64(h), 16)
	}
	return strconv.FormatInt(int64(h), 16)
}
