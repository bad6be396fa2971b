package suggest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/mediacache"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/internal/taxonomy"
	embmock "github.com/MrWong99/emotive/pkg/provider/embeddings/mock"
	mediamock "github.com/MrWong99/emotive/pkg/provider/media/mock"
	trmock "github.com/MrWong99/emotive/pkg/provider/transcript/mock"
	"github.com/MrWong99/emotive/pkg/types"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

type fakeDisplay struct {
	mu    sync.Mutex
	shows []Reaction
	hides int
	shown chan Reaction
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{shown: make(chan Reaction, 16)}
}

func (d *fakeDisplay) ShowReaction(_ context.Context, r Reaction, _ time.Duration) error {
	d.mu.Lock()
	d.shows = append(d.shows, r)
	d.mu.Unlock()
	select {
	case d.shown <- r:
	default:
	}
	return nil
}

func (d *fakeDisplay) HideReaction(context.Context) error {
	d.mu.Lock()
	d.hides++
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) Hides() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hides
}

func itemsPerQuery(query string, _ int) []types.MediaItem {
	return []types.MediaItem{{ID: query, Title: query, Kind: types.MediaGIF, URL: "https://media.example/" + query}}
}

func testKeywords() *keyword.Matcher {
	return keyword.New(keyword.WithRand(func() float64 { return 0.99 }))
}

func enabled(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(testKeywords(), opts...)
	if err := o.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	t.Cleanup(func() { _ = o.Disable() })
	return o
}

func final(text string) types.TranscriptEvent {
	return types.TranscriptEvent{Speaker: types.SpeakerSelf, Text: text, Timestamp: time.Now()}
}

func partial(text string) types.TranscriptEvent {
	return types.TranscriptEvent{Speaker: types.SpeakerSelf, Text: text, Timestamp: time.Now(), IsPartial: true}
}

func waitUpdate(t *testing.T, ch <-chan Update, match func(Update) bool) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if match(u) {
				return u
			}
		case <-deadline:
			t.Fatal("timed out waiting for update")
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasMedia(u Update) bool { return len(u.Media) > 0 }

// testClock is a settable clock for the orchestrator.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Unix(1_700_000_000, 0)} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// heldMedia blocks its first Search until release is closed, ignoring
// cancellation. Later searches answer immediately.
type heldMedia struct {
	mu      sync.Mutex
	ctxs    []context.Context
	queries []string
	release chan struct{}
	done    chan struct{} // closed once the held search has returned
}

func newHeldMedia() *heldMedia {
	return &heldMedia{release: make(chan struct{}), done: make(chan struct{})}
}

func (m *heldMedia) Search(ctx context.Context, query string, limit int) ([]types.MediaItem, error) {
	m.mu.Lock()
	first := len(m.ctxs) == 0
	m.ctxs = append(m.ctxs, ctx)
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if first {
		defer close(m.done)
		<-m.release
	}
	return itemsPerQuery(query, limit), nil
}

func (m *heldMedia) firstCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ctxs) == 0 {
		return nil
	}
	return m.ctxs[0]
}

func (m *heldMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ctxs)
}

// noMediaFrom fails if any update within window carries media matching bad.
func noMediaFrom(t *testing.T, ch <-chan Update, window time.Duration, bad func(Update) bool) {
	t.Helper()
	timeout := time.After(window)
	for {
		select {
		case u := <-ch:
			if hasMedia(u) && bad(u) {
				t.Fatalf("superseded media published: %+v", u)
			}
		case <-timeout:
			return
		}
	}
}

func sortedByConfidence(ss []types.Suggestion) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i].Confidence > ss[i-1].Confidence {
			return false
		}
	}
	return true
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestOrchestrator_DisabledIgnoresInput(t *testing.T) {
	t.Parallel()
	o := New(testKeywords())
	ch, cancel := o.Subscribe(4)
	defer cancel()

	o.HandleEvent(context.Background(), final("lol"))

	if o.State() != StateDisabled {
		t.Errorf("State = %v, want disabled", o.State())
	}
	if got := o.CurrentSuggestions(); len(got) != 0 {
		t.Errorf("CurrentSuggestions = %v, want none", got)
	}
	select {
	case u := <-ch:
		t.Errorf("unexpected update %+v", u)
	default:
	}
}

func TestOrchestrator_SourceLifecycle(t *testing.T) {
	t.Parallel()
	stream := trmock.NewStream(4)
	src := &trmock.Source{Stream: stream}
	o := New(testKeywords(), WithSource(src))
	ch, cancel := o.Subscribe(8)
	defer cancel()

	if err := o.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := o.Enable(context.Background()); err != nil {
		t.Fatalf("second Enable: %v", err)
	}
	if src.Starts() != 1 {
		t.Errorf("Starts = %d, want 1", src.Starts())
	}

	stream.Send(final("lol"))
	u := waitUpdate(t, ch, func(u Update) bool { return len(u.Suggestions) > 0 })
	if u.Suggestions[0].Emoji != "😂" {
		t.Errorf("top emoji = %q, want 😂", u.Suggestions[0].Emoji)
	}

	if err := o.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if stream.Closes() != 1 {
		t.Errorf("stream closes = %d, want 1", stream.Closes())
	}
	if o.State() != StateDisabled {
		t.Errorf("State = %v, want disabled", o.State())
	}
	if got := o.CurrentSuggestions(); len(got) != 0 {
		t.Errorf("suggestions survived Disable: %v", got)
	}
	if err := o.Disable(); err != nil {
		t.Errorf("second Disable: %v", err)
	}
}

func TestOrchestrator_EnableFailureStaysDisabled(t *testing.T) {
	t.Parallel()
	src := &trmock.Source{StartErr: errors.New("connection refused")}
	o := New(testKeywords(), WithSource(src))

	if err := o.Enable(context.Background()); err == nil {
		t.Fatal("Enable succeeded, want error")
	}
	if o.Enabled() {
		t.Error("Enabled() = true after failed start")
	}
}

// ── Final transcripts ────────────────────────────────────────────────────────

func TestOrchestrator_FinalEmitsThenMedia(t *testing.T) {
	t.Parallel()
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	o := enabled(t, WithMediaProvider(media), WithMediaCache(mediacache.New(nil)))
	ch, cancel := o.Subscribe(16)
	defer cancel()

	o.HandleEvent(context.Background(), final("that's hilarious, I love it"))

	first := waitUpdate(t, ch, func(u Update) bool { return len(u.Suggestions) > 0 })
	if !first.MediaLoading {
		t.Error("first update should report media loading")
	}
	top := first.Suggestions[0]
	if top.Confidence <= 0.5 {
		t.Errorf("top confidence = %v, want > 0.5", top.Confidence)
	}
	if top.SearchQuery == "" {
		t.Error("top suggestion has no search query")
	}
	if len(first.Suggestions) > 3 {
		t.Errorf("got %d suggestions, want at most 3", len(first.Suggestions))
	}

	withMedia := waitUpdate(t, ch, hasMedia)
	if withMedia.MediaLoading {
		t.Error("media update still reports loading")
	}
	cfg := o.Config()
	if len(withMedia.Media) > cfg.MaxMediaItems {
		t.Errorf("got %d media items, want at most %d", len(withMedia.Media), cfg.MaxMediaItems)
	}
	if n := media.SearchCount(); n > cfg.MaxMediaQueries {
		t.Errorf("searched %d queries, want at most %d", n, cfg.MaxMediaQueries)
	}
	if got := o.CurrentMedia(); len(got) != len(withMedia.Media) {
		t.Errorf("CurrentMedia has %d items, want %d", len(got), len(withMedia.Media))
	}
}

func TestOrchestrator_NoMatchEmitsNothing(t *testing.T) {
	t.Parallel()
	o := enabled(t)
	ch, cancel := o.Subscribe(4)
	defer cancel()

	o.HandleEvent(context.Background(), final("the quarterly budget meeting is on tuesday"))

	select {
	case u := <-ch:
		t.Errorf("unexpected update %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
	if o.State() != StateIdle {
		t.Errorf("State = %v, want idle", o.State())
	}
}

func TestOrchestrator_StaleFetchDiscarded(t *testing.T) {
	t.Parallel()
	media := &mediamock.Provider{SearchFunc: itemsPerQuery, Delay: 80 * time.Millisecond}
	o := enabled(t, WithMediaProvider(media))
	ch, cancel := o.Subscribe(32)
	defer cancel()

	o.HandleEvent(context.Background(), final("lol"))
	o.HandleEvent(context.Background(), final("wow"))

	u := waitUpdate(t, ch, hasMedia)
	if u.Transcript != "wow" {
		t.Fatalf("media update for %q, want the latest transcript", u.Transcript)
	}

	timeout := time.After(200 * time.Millisecond)
	for {
		select {
		case u := <-ch:
			if hasMedia(u) && u.Transcript == "lol" {
				t.Fatal("stale media from the superseded transcript was published")
			}
		case <-timeout:
			return
		}
	}
}

func TestOrchestrator_StaleFetchIgnoringCancellation(t *testing.T) {
	t.Parallel()
	media := newHeldMedia()
	o := enabled(t, WithMediaProvider(media), WithMediaCache(mediacache.New(nil)))
	ch, cancel := o.Subscribe(32)
	defer cancel()

	o.HandleEvent(context.Background(), final("lol"))
	eventually(t, func() bool { return media.count() == 1 })
	o.HandleEvent(context.Background(), final("wow"))

	u := waitUpdate(t, ch, hasMedia)
	if u.Transcript != "wow" {
		t.Fatalf("media update for %q, want the latest transcript", u.Transcript)
	}
	want := o.CurrentMedia()

	// The superseded search now completes with results.
	close(media.release)
	<-media.done
	noMediaFrom(t, ch, 150*time.Millisecond, func(u Update) bool { return u.Transcript == "lol" })

	got := o.CurrentMedia()
	if len(got) != len(want) || got[0].ID != want[0].ID {
		t.Errorf("CurrentMedia = %v, want the latest transcript's %v", got, want)
	}
}

func TestOrchestrator_FinalSortedAfterProsody(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		text    string
		hints   []string
		wantTop string
	}{
		// surprise ~ surprised 0.889, thinkin ~ thinking 0.875 + related boost.
		{name: "related boost overtakes", text: "surprise thinkin", hints: []string{"calm"}, wantTop: "thinking"},
		{name: "no hints", text: "surprise thinkin", wantTop: "surprised"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			disp := newFakeDisplay()
			cfg := DefaultConfig()
			cfg.DisplayMode = ModeBoth
			o := enabled(t, WithConfig(cfg), WithDisplay(disp))
			ch, cancel := o.Subscribe(8)
			defer cancel()

			if tc.hints != nil {
				o.mu.Lock()
				o.prosodyHints, o.prosodyAt = tc.hints, o.now()
				o.mu.Unlock()
			}
			o.HandleEvent(context.Background(), final(tc.text))

			u := waitUpdate(t, ch, func(u Update) bool { return len(u.Suggestions) > 0 })
			if len(u.Suggestions) < 2 {
				t.Fatalf("suggestions = %v, want two", u.Suggestions)
			}
			if !sortedByConfidence(u.Suggestions) {
				t.Errorf("suggestions not sorted by confidence: %v", u.Suggestions)
			}
			if got := u.Suggestions[0].Keyword; got != tc.wantTop {
				t.Errorf("top = %q, want %q", got, tc.wantTop)
			}

			select {
			case r := <-disp.shown:
				if r.Keyword != tc.wantTop {
					t.Errorf("auto-displayed %q, want %q", r.Keyword, tc.wantTop)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("nothing auto-displayed")
			}
		})
	}
}

func TestOrchestrator_QueryCacheServesRepeats(t *testing.T) {
	t.Parallel()
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	o := enabled(t, WithMediaProvider(media))

	first, err := o.searchCached(context.Background(), "lol laughing", 3)
	if err != nil {
		t.Fatalf("searchCached: %v", err)
	}
	second, err := o.searchCached(context.Background(), "  LOL laughing ", 3)
	if err != nil {
		t.Fatalf("searchCached: %v", err)
	}
	if len(first) != 1 || len(second) != 1 || first[0].ID != second[0].ID {
		t.Errorf("results differ: %v vs %v", first, second)
	}
	if n := media.SearchCount(); n != 1 {
		t.Errorf("SearchCount = %d, want 1", n)
	}
}

// ── Semantic ─────────────────────────────────────────────────────────────────

const semanticTaxonomy = `contexts:
  - name: casual
    categories:
      - name: humor
        emoji: "🤣"
        anchors: ["lol", "so funny"]
        media_patterns: ["laughing crying"]
  - name: emotional
    categories:
      - name: love
        emoji: "❤️"
        anchors: ["aww"]
        media_patterns: ["heart love"]
`

func loadedSemantic(t *testing.T, slow time.Duration) *semantic.Matcher {
	t.Helper()
	tax, err := taxonomy.Parse([]byte(semanticTaxonomy))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := &embmock.Provider{
		Vectors: map[string][]float32{
			"lol":      {1, 0},
			"so funny": {0.8, 0.2},
			"aww":      {0, 1},
		},
		EmbedFunc: func(string) []float32 {
			time.Sleep(slow)
			return []float32{1, 0}
		},
		DimensionsValue: 2,
	}
	m := semantic.New(p, semantic.WithTaxonomy(tax))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestOrchestrator_SemanticLeads(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.SemanticTimeout = time.Second
	o := enabled(t, WithSemantic(loadedSemantic(t, 0)), WithConfig(cfg))
	ch, cancel := o.Subscribe(4)
	defer cancel()

	o.HandleEvent(context.Background(), final("that cracked me up"))

	u := waitUpdate(t, ch, func(u Update) bool { return len(u.Suggestions) > 0 })
	top := u.Suggestions[0]
	if top.Source != types.SourceSemantic || top.Keyword != "humor" {
		t.Errorf("top = %q from %q, want humor from semantic", top.Keyword, top.Source)
	}
}

func TestOrchestrator_SemanticTimeoutFallsBackToRules(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.SemanticTimeout = 10 * time.Millisecond
	o := enabled(t, WithSemantic(loadedSemantic(t, 300*time.Millisecond)), WithConfig(cfg))
	ch, cancel := o.Subscribe(4)
	defer cancel()

	start := time.Now()
	o.HandleEvent(context.Background(), final("wow"))
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("final took %v, want bounded by the semantic timeout", elapsed)
	}

	u := waitUpdate(t, ch, func(u Update) bool { return len(u.Suggestions) > 0 })
	for _, s := range u.Suggestions {
		if s.Source != types.SourceRule {
			t.Errorf("suggestion %q from %q, want rule only", s.Keyword, s.Source)
		}
	}
}

// ── Partial transcripts ──────────────────────────────────────────────────────

func TestOrchestrator_PartialDebounce(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.PartialDebounce = 30 * time.Millisecond
	o := enabled(t, WithConfig(cfg))
	ch, cancel := o.Subscribe(8)
	defer cancel()

	o.HandleEvent(context.Background(), partial("that was aw"))
	o.HandleEvent(context.Background(), partial("that was awesome"))
	o.HandleEvent(context.Background(), partial("that was awesome"))

	u := waitUpdate(t, ch, func(u Update) bool { return u.Partial })
	if u.Transcript != "that was awesome" {
		t.Errorf("partial update for %q, want the last partial", u.Transcript)
	}
	if len(u.Suggestions) == 0 || u.Suggestions[0].Keyword != "awesome" {
		t.Errorf("suggestions = %v, want awesome first", u.Suggestions)
	}

	select {
	case extra := <-ch:
		t.Errorf("unexpected second update %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOrchestrator_FinalCancelsPendingPartial(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.PartialDebounce = 50 * time.Millisecond
	o := enabled(t, WithConfig(cfg))
	ch, cancel := o.Subscribe(8)
	defer cancel()

	o.HandleEvent(context.Background(), partial("wow"))
	o.HandleEvent(context.Background(), final("lol"))

	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case u := <-ch:
			if u.Partial {
				t.Fatalf("partial emitted after its final: %+v", u)
			}
		case <-timeout:
			return
		}
	}
}

func TestOrchestrator_PartialSpeculativeFetch(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.PartialDebounce = 10 * time.Millisecond
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	o := enabled(t, WithConfig(cfg), WithMediaProvider(media), WithMediaCache(mediacache.New(nil)))
	ch, cancel := o.Subscribe(8)
	defer cancel()

	o.HandleEvent(context.Background(), partial("lol"))

	u := waitUpdate(t, ch, func(u Update) bool { return u.Partial && hasMedia(u) })
	if u.Media[0].ID != "lol laughing" {
		t.Errorf("speculative media = %v, want results for the rule search query", u.Media)
	}
}

func TestOrchestrator_SpeculativeFetchRateLimited(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	cfg := DefaultConfig()
	cfg.PartialDebounce = 10 * time.Millisecond
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	o := enabled(t, WithConfig(cfg), WithClock(clock.Now), WithMediaProvider(media), WithMediaCache(mediacache.New(nil)))
	ch, cancel := o.Subscribe(16)
	defer cancel()

	o.HandleEvent(context.Background(), partial("lol"))
	waitUpdate(t, ch, func(u Update) bool { return u.Partial && hasMedia(u) })

	// Within the interval: the partial is shown but nothing is fetched.
	clock.Advance(cfg.SpeculativeFetchInterval - time.Millisecond)
	o.HandleEvent(context.Background(), partial("wow"))
	waitUpdate(t, ch, func(u Update) bool { return u.Partial && u.Transcript == "wow" })
	time.Sleep(50 * time.Millisecond)
	if n := media.SearchCount(); n != 1 {
		t.Fatalf("SearchCount = %d within the interval, want 1", n)
	}

	clock.Advance(time.Millisecond)
	o.HandleEvent(context.Background(), partial("hilarious"))
	eventually(t, func() bool { return media.SearchCount() == 2 })
	if q := media.Queries(); q[1] != "laughing hysterical" {
		t.Errorf("queries = %v, want the new partial's search query second", q)
	}
}

func TestOrchestrator_SpeculativeFetchCancelsPrevious(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	cfg := DefaultConfig()
	cfg.PartialDebounce = 10 * time.Millisecond
	media := newHeldMedia()
	o := enabled(t, WithConfig(cfg), WithClock(clock.Now), WithMediaProvider(media), WithMediaCache(mediacache.New(nil)))
	ch, cancel := o.Subscribe(16)
	defer cancel()

	o.HandleEvent(context.Background(), partial("lol"))
	eventually(t, func() bool { return media.count() == 1 })
	first := media.firstCtx()

	clock.Advance(cfg.SpeculativeFetchInterval)
	o.HandleEvent(context.Background(), partial("wow"))

	u := waitUpdate(t, ch, func(u Update) bool { return u.Partial && hasMedia(u) })
	if u.Media[0].ID != "wow reaction" {
		t.Errorf("speculative media = %v, want the latest partial's", u.Media)
	}
	if first.Err() == nil {
		t.Error("first speculative fetch was not cancelled")
	}

	close(media.release)
	<-media.done
	noMediaFrom(t, ch, 150*time.Millisecond, func(u Update) bool { return u.Media[0].ID == "lol laughing" })
	if got := o.CurrentMedia(); len(got) == 0 || got[0].ID != "wow reaction" {
		t.Errorf("CurrentMedia = %v, want the latest partial's", got)
	}
}

func TestOrchestrator_SpeculativeFetchAfterFinalSkipped(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.PartialDebounce = time.Hour
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	o := enabled(t, WithConfig(cfg), WithMediaProvider(media), WithMediaCache(mediacache.New(nil)))
	ch, cancel := o.Subscribe(16)
	defer cancel()

	// A partial is debounced, then a final overtakes it before its fetch starts.
	o.HandleEvent(context.Background(), partial("wow"))
	o.mu.Lock()
	gen := o.debounceGen
	o.mu.Unlock()

	o.HandleEvent(context.Background(), final("lol"))
	waitUpdate(t, ch, hasMedia)
	want := o.CurrentMedia()
	searches := media.SearchCount()

	o.speculativeFetch(context.Background(), gen, types.Suggestion{Keyword: "wow", SearchQuery: "wow reaction"})

	noMediaFrom(t, ch, 100*time.Millisecond, func(Update) bool { return true })
	if n := media.SearchCount(); n != searches {
		t.Errorf("SearchCount = %d, want %d", n, searches)
	}
	if got := o.CurrentMedia(); len(got) != len(want) || got[0].ID != want[0].ID {
		t.Errorf("CurrentMedia = %v, want the final's %v", got, want)
	}
}

// ── Other speaker ────────────────────────────────────────────────────────────

func TestOrchestrator_OtherSpeakerPredictsAndPrefetches(t *testing.T) {
	t.Parallel()
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	cache := mediacache.New(media)
	o := enabled(t, WithMediaProvider(media), WithMediaCache(cache))
	ch, cancel := o.Subscribe(4)
	defer cancel()

	o.HandleEvent(context.Background(), types.TranscriptEvent{
		Speaker: types.SpeakerOther,
		Text:    "We won! Great news everyone",
	})

	preds := o.PredictiveSuggestions()
	if len(preds) == 0 {
		t.Fatal("no predictive suggestions")
	}
	for _, p := range preds {
		if p.Source != types.SourcePredictive {
			t.Errorf("prediction %q source = %q, want predictive", p.Keyword, p.Source)
		}
	}
	eventually(t, func() bool { return cache.IsCached("congratulations") })

	if got := o.Buffer().Len(); got != 1 {
		t.Errorf("buffer holds %d entries, want 1", got)
	}
	select {
	case u := <-ch:
		t.Errorf("other-speaker speech emitted an update: %+v", u)
	default:
	}
}

func TestOrchestrator_OtherSpeakerTopicsShapeQueries(t *testing.T) {
	t.Parallel()
	o := New(testKeywords(), WithRand(func() float64 { return 0 }))
	o.buffer.Add(types.SpeakerOther, "the pizza delivery was late again, pizza everywhere")

	top := types.Suggestion{Keyword: "lol", Emoji: "😂", SearchQuery: "lol laughing"}
	got := o.mediaQueries(top, nil, "lol", o.Config())
	if len(got) == 0 || got[0] != "pizza lol" {
		t.Errorf("queries = %v, want the topic first", got)
	}
	if len(got) > 3 {
		t.Errorf("got %d queries, want at most 3", len(got))
	}
}

// ── Display ──────────────────────────────────────────────────────────────────

func TestOrchestrator_AutoDisplay(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.DisplayMode = ModeAuto
	disp := newFakeDisplay()
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	o := enabled(t, WithConfig(cfg), WithDisplay(disp), WithMediaProvider(media))

	o.HandleEvent(context.Background(), final("lol"))

	select {
	case r := <-disp.shown:
		if r.Emoji != "😂" {
			t.Errorf("shown emoji = %q, want 😂", r.Emoji)
		}
	case <-time.After(time.Second):
		t.Fatal("nothing was auto-displayed")
	}
	time.Sleep(20 * time.Millisecond)
	for _, q := range media.Queries() {
		if q == "lol laughing" {
			t.Error("auto-only mode fetched media for the panel")
		}
	}
}

func TestOrchestrator_DisplayMediaSendsAnalytics(t *testing.T) {
	t.Parallel()
	disp := newFakeDisplay()
	media := &mediamock.Provider{SearchFunc: itemsPerQuery}
	o := enabled(t, WithDisplay(disp), WithMediaProvider(media))
	ch, cancel := o.Subscribe(8)
	defer cancel()

	o.HandleEvent(context.Background(), final("lol"))
	u := waitUpdate(t, ch, hasMedia)
	id := u.Media[0].ID

	if err := o.DisplayMedia(context.Background(), id); err != nil {
		t.Fatalf("DisplayMedia: %v", err)
	}
	r := <-disp.shown
	if r.Media == nil || r.Media.ID != id {
		t.Errorf("shown reaction = %+v, want media %q", r, id)
	}
	eventually(t, func() bool { return len(media.Analytics()) == 1 })

	if err := o.DisplayMedia(context.Background(), "missing"); err == nil {
		t.Error("DisplayMedia(missing) succeeded, want error")
	}
}

func TestOrchestrator_DisplayWithoutSink(t *testing.T) {
	t.Parallel()
	o := New(testKeywords())
	err := o.DisplaySuggestion(context.Background(), types.Suggestion{Emoji: "👍"})
	if !errors.Is(err, ErrNoDisplay) {
		t.Errorf("err = %v, want ErrNoDisplay", err)
	}
}

func TestDisplayQueue_ShowsInOrder(t *testing.T) {
	t.Parallel()
	disp := newFakeDisplay()
	q := displayQueue{display: disp, duration: func() time.Duration { return 5 * time.Millisecond }}

	q.push(context.Background(), types.Suggestion{Keyword: "a", Emoji: "1"})
	q.push(context.Background(), types.Suggestion{Keyword: "b", Text: "Nice!"})

	first, second := <-disp.shown, <-disp.shown
	if first.Emoji != "1" {
		t.Errorf("first = %+v, want emoji 1", first)
	}
	if second.Text != "Nice!" || second.Style != defaultTextStyle {
		t.Errorf("second = %+v, want text with default style", second)
	}
	eventually(t, func() bool { return disp.Hides() == 2 })
}

func TestDisplayQueue_ClearDropsPending(t *testing.T) {
	t.Parallel()
	disp := newFakeDisplay()
	q := displayQueue{display: disp, duration: func() time.Duration { return time.Hour }}

	q.push(context.Background(), types.Suggestion{Emoji: "1"})
	<-disp.shown
	q.push(context.Background(), types.Suggestion{Emoji: "2"})
	q.clear()

	if n := q.pending(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
	select {
	case r := <-disp.shown:
		t.Errorf("cleared reaction shown: %+v", r)
	case <-time.After(30 * time.Millisecond):
	}
}

// ── Configuration ────────────────────────────────────────────────────────────

func TestOrchestrator_ConfigSetters(t *testing.T) {
	t.Parallel()
	o := New(testKeywords())

	o.SetAutoDisplayDuration(30 * time.Second)
	if got := o.Config().AutoDisplayDuration; got != 10*time.Second {
		t.Errorf("AutoDisplayDuration = %v, want clamped to 10s", got)
	}
	o.SetAutoDisplayDuration(0)
	if got := o.Config().AutoDisplayDuration; got != time.Second {
		t.Errorf("AutoDisplayDuration = %v, want clamped to 1s", got)
	}
	if err := o.SetDisplayMode("sometimes"); err == nil {
		t.Error("SetDisplayMode accepted an unknown mode")
	}
	if err := o.SetDisplayMode(ModeBoth); err != nil {
		t.Fatalf("SetDisplayMode: %v", err)
	}
	if got := o.Config().DisplayMode; got != ModeBoth {
		t.Errorf("DisplayMode = %q, want both", got)
	}
}

// ── Personalisation ──────────────────────────────────────────────────────────

func TestOrchestrator_LogReactionSelection(t *testing.T) {
	t.Parallel()
	prefs := preference.New()
	o := enabled(t, WithPreferences(prefs))
	ch, cancel := o.Subscribe(4)
	defer cancel()

	o.HandleEvent(context.Background(), final("lol"))
	u := waitUpdate(t, ch, func(u Update) bool { return len(u.Suggestions) > 0 })

	if err := o.LogReactionSelection(context.Background(), u.Suggestions[0], preference.SourceEmoji); err != nil {
		t.Fatalf("LogReactionSelection: %v", err)
	}
	st := prefs.Stats()
	if st.TotalSelections != 1 {
		t.Errorf("TotalSelections = %d, want 1", st.TotalSelections)
	}
	if st.TopEmoji != "😂" {
		t.Errorf("TopEmoji = %q, want 😂", st.TopEmoji)
	}
}
