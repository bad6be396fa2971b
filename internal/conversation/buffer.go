// Package conversation keeps a rolling, time-bounded log of transcript
// entries from both sides of a call and extracts what the other speaker is
// talking about.
//
// The buffer enforces a maximum entry count and a maximum age, both applied on
// every insert. Subscribers receive [Event] values on buffered channels; slow
// subscribers miss events rather than blocking writers.
package conversation

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/MrWong99/emotive/internal/notify"
	"github.com/MrWong99/emotive/pkg/types"
)

// Defaults applied when the corresponding constructor argument is zero.
const (
	DefaultMaxEntries     = 20
	DefaultMaxAge         = 60 * time.Second
	DefaultTopicsLookback = 15 * time.Second

	maxTopics = 5
)

// Entry is a single transcript stored in the [Buffer].
type Entry struct {
	Speaker   types.Speaker
	Text      string
	Timestamp time.Time
}

// EventKind distinguishes buffer notifications.
type EventKind int

const (
	// EventAdded is emitted after an entry is appended.
	EventAdded EventKind = iota
	// EventCleared is emitted after [Buffer.Clear].
	EventCleared
)

// Event is delivered to subscribers. Entry is zero for [EventCleared].
type Event struct {
	Kind  EventKind
	Entry Entry
	Size  int
}

// QueryContext packages conversation state for media query construction.
type QueryContext struct {
	// Topics are the other speaker's most frequent recent words.
	Topics []string
	// HasContext reports whether any topic was found.
	HasContext bool
	// RecentOtherText is the other speaker's recent speech joined by spaces.
	RecentOtherText string
	// UserTranscript is echoed back unchanged.
	UserTranscript string
}

// Buffer is a rolling conversation log. All methods are safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	maxAge  time.Duration
	now     func() time.Time

	events notify.Broadcaster[Event]
}

// Option configures a [Buffer].
type Option func(*Buffer)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// New creates a buffer that retains at most maxSize entries and evicts entries
// older than maxAge. Non-positive values select the package defaults.
func New(maxSize int, maxAge time.Duration, opts ...Option) *Buffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	b := &Buffer{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Add appends a timestamped entry and evicts entries beyond the size and age
// limits. Blank text is ignored.
func (b *Buffer) Add(speaker types.Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	b.mu.Lock()
	e := Entry{Speaker: speaker, Text: text, Timestamp: b.now()}
	b.entries = append(b.entries, e)
	b.evict()
	size := len(b.entries)
	b.mu.Unlock()

	b.events.Publish(Event{Kind: EventAdded, Entry: e, Size: size})
}

// Recent returns entries younger than lookback in chronological order.
func (b *Buffer) Recent(lookback time.Duration) []Entry {
	return b.filter("", lookback)
}

// BySpeaker returns entries from speaker younger than lookback.
func (b *Buffer) BySpeaker(speaker types.Speaker, lookback time.Duration) []Entry {
	return b.filter(speaker, lookback)
}

func (b *Buffer) filter(speaker types.Speaker, lookback time.Duration) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := b.now().Add(-lookback)
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if speaker != "" && e.Speaker != speaker {
			continue
		}
		out = append(out, e)
	}
	return out
}

// OtherSpeakerTopics returns up to five frequent non-stop-words spoken by the
// other party within lookback, most frequent first. Ties keep first-seen order.
func (b *Buffer) OtherSpeakerTopics(lookback time.Duration) []string {
	if lookback <= 0 {
		lookback = DefaultTopicsLookback
	}
	entries := b.BySpeaker(types.SpeakerOther, lookback)
	if len(entries) == 0 {
		return nil
	}

	type count struct {
		word string
		n    int
	}
	index := make(map[string]int)
	var counts []count
	for _, e := range entries {
		for _, w := range tokenize(e.Text) {
			if len([]rune(w)) <= 2 || isStopWord(w) {
				continue
			}
			if i, ok := index[w]; ok {
				counts[i].n++
				continue
			}
			index[w] = len(counts)
			counts = append(counts, count{word: w, n: 1})
		}
	}

	sort.SliceStable(counts, func(i, j int) bool { return counts[i].n > counts[j].n })
	if len(counts) > maxTopics {
		counts = counts[:maxTopics]
	}
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.word
	}
	return out
}

// BuildQueryContext combines recent other-speaker topics and text with the
// user's transcript.
func (b *Buffer) BuildQueryContext(userTranscript string) QueryContext {
	topics := b.OtherSpeakerTopics(DefaultTopicsLookback)
	others := b.BySpeaker(types.SpeakerOther, DefaultTopicsLookback)
	texts := make([]string, len(others))
	for i, e := range others {
		texts[i] = e.Text
	}
	return QueryContext{
		Topics:          topics,
		HasContext:      len(topics) > 0,
		RecentOtherText: strings.Join(texts, " "),
		UserTranscript:  userTranscript,
	}
}

// Last returns the newest entry, if any.
func (b *Buffer) Last() (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Clear empties the buffer and notifies subscribers.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = make([]Entry, 0, b.maxSize)
	b.mu.Unlock()
	b.events.Publish(Event{Kind: EventCleared})
}

// Subscribe returns a channel receiving buffer events and a cancel func that
// unsubscribes and closes the channel. Events are dropped when the channel
// is full.
func (b *Buffer) Subscribe(buffer int) (<-chan Event, func()) {
	return b.events.Subscribe(buffer)
}

// evict drops expired entries, then trims to maxSize. Survivors are copied to
// a fresh backing array so evicted entries can be collected.
// Must be called with b.mu held.
func (b *Buffer) evict() {
	cutoff := b.now().Add(-b.maxAge)

	start := 0
	for start < len(b.entries) && b.entries[start].Timestamp.Before(cutoff) {
		start++
	}
	keep := b.entries[start:]
	if len(keep) > b.maxSize {
		keep = keep[len(keep)-b.maxSize:]
	}
	if len(keep) < len(b.entries) {
		fresh := make([]Entry, len(keep), b.maxSize)
		copy(fresh, keep)
		b.entries = fresh
	}
}

// tokenize lower-cases text and splits it on anything that is not a letter,
// digit or underscore.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}
