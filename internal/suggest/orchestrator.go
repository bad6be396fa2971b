// Package suggest turns a live transcript feed into reaction suggestions.
//
// The [Orchestrator] is the pipeline's state machine. Partial transcripts get
// a fast, debounced, rule-only pass that speculatively warms media. Final
// transcripts run the keyword and semantic matchers concurrently, merge the
// results, rescale them by intensity, prosody and the user's preferences, and
// emit them immediately while media loads in the background. Speech from the
// other party only feeds prediction and the media cache.
//
// Updates reach consumers through [Orchestrator.Subscribe] and an optional
// [Panel]; auto-displayed reactions go to an optional [Display].
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/emotive/internal/conversation"
	"github.com/MrWong99/emotive/internal/intensity"
	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/mediacache"
	"github.com/MrWong99/emotive/internal/notify"
	"github.com/MrWong99/emotive/internal/observe"
	"github.com/MrWong99/emotive/internal/predict"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/internal/prosody"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/provider/transcript"
	"github.com/MrWong99/emotive/pkg/types"
)

// semanticBackgroundTimeout bounds an embedding request that outlived the
// match timeout. Letting it finish fills the embedding cache.
const semanticBackgroundTimeout = 5 * time.Second

// ErrNoDisplay is returned by display operations when no [Display] is set.
var ErrNoDisplay = errors.New("suggest: no display configured")

// State is the orchestrator's lifecycle state.
type State int

const (
	// StateDisabled ignores all input.
	StateDisabled State = iota

	// StateIdle is enabled and waiting for input.
	StateIdle

	// StateProcessing is enabled with at least one transcript in flight.
	StateProcessing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Update is one snapshot of the current suggestions, pushed to subscribers
// and the panel whenever suggestions or media change.
type Update struct {
	Suggestions  []types.Suggestion `json:"suggestions"`
	Media        []types.MediaItem  `json:"media"`
	MediaLoading bool               `json:"media_loading"`

	// Partial marks updates produced from a partial transcript.
	Partial bool `json:"partial,omitempty"`

	Transcript string    `json:"transcript,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Orchestrator coordinates matchers, enrichment and media for one user.
// All exported methods are safe for concurrent use.
type Orchestrator struct {
	keywords  *keyword.Matcher
	semantic  *semantic.Matcher
	prosody   *prosody.Analyzer
	prefs     *preference.Tracker
	predictor *predict.Predictor
	cache     *mediacache.Cache
	queries   *mediacache.QueryCache
	media     media.Provider
	source    transcript.Source
	buffer    *conversation.Buffer
	panel     Panel
	metrics   *observe.Metrics
	now       func() time.Time
	rnd       func() float64

	display displayQueue
	updates notify.Broadcaster[Update]

	// life serialises Enable and Disable.
	life sync.Mutex

	mu         sync.Mutex
	cfg        Config
	enabled    bool
	busy       int
	rootCtx    context.Context
	rootCancel context.CancelFunc
	stream     transcript.Stream
	loopDone   chan struct{}

	lastPartial   string
	debounce      *time.Timer
	debounceGen   uint64
	lastSpecFetch time.Time
	specCancel    context.CancelFunc
	specGen       uint64
	fetchID       uint64
	fetchCancel   context.CancelFunc

	current        []types.Suggestion
	currentMedia   []types.MediaItem
	predictive     []types.Suggestion
	lastTranscript string
	prosodyHints   []string
	prosodyAt      time.Time
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithConfig replaces the default tunables. Invalid values fall back to
// defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg.normalized() }
}

// WithSemantic enables embedding-based matching.
func WithSemantic(m *semantic.Matcher) Option {
	return func(o *Orchestrator) { o.semantic = m }
}

// WithProsody replaces the prosody analyzer.
func WithProsody(a *prosody.Analyzer) Option {
	return func(o *Orchestrator) { o.prosody = a }
}

// WithPreferences enables personalised ranking and selection logging.
func WithPreferences(t *preference.Tracker) Option {
	return func(o *Orchestrator) { o.prefs = t }
}

// WithPredictor replaces the reaction predictor.
func WithPredictor(p *predict.Predictor) Option {
	return func(o *Orchestrator) { o.predictor = p }
}

// WithMediaProvider enables media suggestions.
func WithMediaProvider(p media.Provider) Option {
	return func(o *Orchestrator) { o.media = p }
}

// WithMediaCache replaces the speculative category cache.
func WithMediaCache(c *mediacache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithQueryCache replaces the per-query media cache.
func WithQueryCache(c *mediacache.QueryCache) Option {
	return func(o *Orchestrator) { o.queries = c }
}

// WithSource sets the transcript feed started by [Orchestrator.Enable].
// Without a source, events arrive only through [Orchestrator.HandleEvent].
func WithSource(s transcript.Source) Option {
	return func(o *Orchestrator) { o.source = s }
}

// WithBuffer replaces the conversation buffer.
func WithBuffer(b *conversation.Buffer) Option {
	return func(o *Orchestrator) { o.buffer = b }
}

// WithDisplay sets the sink for auto-displayed and manually chosen reactions.
func WithDisplay(d Display) Option {
	return func(o *Orchestrator) { o.display.display = d }
}

// WithPanel sets the suggestion panel.
func WithPanel(p Panel) Option {
	return func(o *Orchestrator) { o.panel = p }
}

// WithMetrics replaces the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces the time source for timestamps and rate limits.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRand replaces the random source used to pick media patterns.
func WithRand(rnd func() float64) Option {
	return func(o *Orchestrator) { o.rnd = rnd }
}

// New creates a disabled Orchestrator around the keyword matcher. A nil
// matcher gets the built-in table.
func New(keywords *keyword.Matcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		keywords: keywords,
		cfg:      DefaultConfig(),
		now:      time.Now,
		rnd:      rand.Float64,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.keywords == nil {
		o.keywords = keyword.New()
	}
	if o.prosody == nil {
		o.prosody = prosody.New()
	}
	if o.predictor == nil {
		o.predictor = predict.New()
	}
	if o.buffer == nil {
		o.buffer = conversation.New(conversation.DefaultMaxEntries, conversation.DefaultMaxAge, conversation.WithClock(o.now))
	}
	if o.queries == nil {
		o.queries = mediacache.NewQueryCache(0, 0, o.now)
	}
	if o.cache == nil && o.media != nil {
		o.cache = mediacache.New(o.media, mediacache.WithPredictor(o.predictor), mediacache.WithClock(o.now))
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.display.duration = func() time.Duration {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.cfg.AutoDisplayDuration
	}
	return o
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// Enable starts the transcript source, triggers a background semantic load
// and warms the media cache. Enabling twice is a no-op. If the source fails
// to start the orchestrator stays disabled.
func (o *Orchestrator) Enable(ctx context.Context) error {
	o.life.Lock()
	defer o.life.Unlock()

	o.mu.Lock()
	if o.enabled {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	root, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var stream transcript.Stream
	if o.source != nil {
		st, err := o.source.Start(root)
		if err != nil {
			cancel()
			return fmt.Errorf("suggest: enable: %w", err)
		}
		stream = st
		o.metrics.ActiveStreams.Add(ctx, 1)
	}

	o.mu.Lock()
	o.enabled = true
	o.rootCtx, o.rootCancel = root, cancel
	o.stream = stream
	o.loopDone = nil
	if stream != nil {
		done := make(chan struct{})
		o.loopDone = done
		go o.consume(root, stream, done)
	}
	o.mu.Unlock()

	o.preloadSemantic(root)
	if o.cache != nil {
		go o.cache.WarmDefaults(root)
	}
	slog.Info("suggest: enabled", "source", stream != nil, "mode", string(o.Config().DisplayMode))
	return nil
}

// Disable stops the source, cancels pending timers and fetches, clears the
// display queue and forgets the current suggestions. Disabling twice is a
// no-op.
func (o *Orchestrator) Disable() error {
	o.life.Lock()
	defer o.life.Unlock()

	o.mu.Lock()
	if !o.enabled {
		o.mu.Unlock()
		return nil
	}
	o.enabled = false
	cancel, stream, done := o.rootCancel, o.stream, o.loopDone
	o.rootCtx, o.rootCancel, o.stream, o.loopDone = nil, nil, nil, nil
	o.stopTimersLocked()
	o.current, o.currentMedia, o.predictive = nil, nil, nil
	o.lastPartial, o.lastTranscript = "", ""
	o.prosodyHints, o.prosodyAt = nil, time.Time{}
	o.mu.Unlock()

	o.display.clear()
	cancel()

	var err error
	if stream != nil {
		if cerr := stream.Close(); cerr != nil {
			err = fmt.Errorf("suggest: disable: %w", cerr)
		}
		o.metrics.ActiveStreams.Add(context.Background(), -1)
	}
	if done != nil {
		<-done
	}
	o.publish(Update{})
	slog.Info("suggest: disabled")
	return err
}

// stopTimersLocked cancels the debounce timer and every media fetch and
// invalidates their generations. Must be called with o.mu held.
func (o *Orchestrator) stopTimersLocked() {
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.debounceGen++
	if o.specCancel != nil {
		o.specCancel()
		o.specCancel = nil
	}
	o.specGen++
	if o.fetchCancel != nil {
		o.fetchCancel()
		o.fetchCancel = nil
	}
	o.fetchID++
}

func (o *Orchestrator) consume(ctx context.Context, st transcript.Stream, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-st.Events():
			if !ok {
				slog.Info("suggest: transcript stream ended")
				return
			}
			o.HandleEvent(ctx, ev)
		}
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case !o.enabled:
		return StateDisabled
	case o.busy > 0:
		return StateProcessing
	default:
		return StateIdle
	}
}

// Enabled reports whether the orchestrator accepts input.
func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// begin marks a transcript in flight and returns the session context. ok is
// false when disabled.
func (o *Orchestrator) beginLocked() (context.Context, bool) {
	if !o.enabled {
		return nil, false
	}
	o.busy++
	return o.rootCtx, true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.busy--
	o.mu.Unlock()
}

// ── Configuration ────────────────────────────────────────────────────────────

// Config returns the current tunables.
func (o *Orchestrator) Config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// ApplyConfig replaces the tunables. Invalid values fall back to defaults
// and the display duration is clamped.
func (o *Orchestrator) ApplyConfig(cfg Config) {
	cfg = cfg.normalized()
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

// SetDisplayMode switches the display mode.
func (o *Orchestrator) SetDisplayMode(m DisplayMode) error {
	if _, err := ParseDisplayMode(string(m)); err != nil {
		return err
	}
	o.mu.Lock()
	o.cfg.DisplayMode = m
	o.mu.Unlock()
	return nil
}

// SetAutoDisplayDuration sets how long auto-displayed reactions stay up,
// clamped to [1s, 10s].
func (o *Orchestrator) SetAutoDisplayDuration(d time.Duration) {
	o.mu.Lock()
	o.cfg.AutoDisplayDuration = min(max(d, minDisplayDuration), maxDisplayDuration)
	o.mu.Unlock()
}

// ── Input ────────────────────────────────────────────────────────────────────

// HandleEvent routes one transcript event. It is called by the source loop
// and may be called directly by other ingest paths. Events are ignored while
// disabled. Final transcripts are processed before HandleEvent returns; media
// continues loading in the background.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev types.TranscriptEvent) {
	if ev.Text == "" {
		return
	}
	switch {
	case ev.Speaker == types.SpeakerOther:
		if !ev.IsPartial {
			o.handleOther(ev.Text)
		}
	case ev.IsPartial:
		o.handlePartial(ev.Text)
	default:
		o.handleFinal(ctx, ev.Text)
	}
}

// SubmitProsody analyses one acoustic sample. Its emotion hints apply to
// final transcripts for the configured prosody window.
func (o *Orchestrator) SubmitProsody(f types.ProsodyFeatures) prosody.Analysis {
	a := o.prosody.Analyze(f)
	hints := make([]string, len(a.Emotions))
	for i, e := range a.Emotions {
		hints[i] = e.Emotion
	}
	o.mu.Lock()
	o.prosodyHints, o.prosodyAt = hints, o.now()
	o.mu.Unlock()
	return a
}

// ── Partial transcripts ──────────────────────────────────────────────────────

func (o *Orchestrator) handlePartial(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled || text == o.lastPartial {
		return
	}
	o.lastPartial = text
	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.debounceGen++
	gen := o.debounceGen
	o.debounce = time.AfterFunc(o.cfg.PartialDebounce, func() { o.processPartial(gen, text) })
}

func (o *Orchestrator) processPartial(gen uint64, text string) {
	o.mu.Lock()
	if gen != o.debounceGen {
		o.mu.Unlock()
		return
	}
	root, ok := o.beginLocked()
	o.mu.Unlock()
	if !ok {
		return
	}
	defer o.end()
	start := time.Now()

	matches := o.keywords.Match(text)
	if len(matches) == 0 {
		return
	}
	top := matches[0]

	var (
		cached []types.MediaItem
		hit    bool
	)
	if o.cache != nil {
		cached, hit = o.cache.Get(top.Keyword)
		o.metrics.RecordCacheLookup(root, "category", hit)
	}

	o.mu.Lock()
	if gen != o.debounceGen {
		o.mu.Unlock()
		return
	}
	o.current = matches
	if hit {
		o.currentMedia = cached
	}
	o.mu.Unlock()

	o.publish(Update{Suggestions: matches, Media: cached, MediaLoading: !hit && o.media != nil, Partial: true, Transcript: text})
	if !hit {
		o.speculativeFetch(root, gen, top)
	}
	o.metrics.PartialDuration.Record(root, time.Since(start).Seconds())
}

// speculativeFetch searches media for a partial's top match. Fetches are
// rate limited and a new one cancels the previous. Nothing is started once a
// newer partial or a final has moved past debounce generation gen.
func (o *Orchestrator) speculativeFetch(root context.Context, gen uint64, top types.Suggestion) {
	if o.media == nil || top.Keyword == "" {
		return
	}
	query := top.SearchQuery
	if query == "" {
		query = top.Keyword + " reaction"
	}

	o.mu.Lock()
	if gen != o.debounceGen || !o.enabled {
		o.mu.Unlock()
		return
	}
	now := o.now()
	if !o.lastSpecFetch.IsZero() && now.Sub(o.lastSpecFetch) < o.cfg.SpeculativeFetchInterval {
		o.mu.Unlock()
		return
	}
	o.lastSpecFetch = now
	if o.specCancel != nil {
		o.specCancel()
	}
	ctx, cancel := context.WithCancel(root)
	o.specCancel = cancel
	o.specGen++
	spec := o.specGen
	limit := o.cfg.MediaPerQuery
	o.mu.Unlock()

	go func() {
		defer cancel()
		items, err := o.media.Search(ctx, query, limit)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("suggest: speculative media fetch failed", "query", query, "err", err)
			}
			return
		}

		o.mu.Lock()
		if spec != o.specGen || !o.enabled || len(items) == 0 {
			o.mu.Unlock()
			return
		}
		o.specCancel = nil
		o.currentMedia = items
		sugg := append([]types.Suggestion(nil), o.current...)
		o.mu.Unlock()

		o.publish(Update{Suggestions: sugg, Media: items, Partial: true})
	}()
}

// ── Final transcripts ────────────────────────────────────────────────────────

func (o *Orchestrator) handleFinal(ctx context.Context, text string) {
	start := time.Now()

	o.mu.Lock()
	root, ok := o.beginLocked()
	if !ok {
		o.mu.Unlock()
		return
	}
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.debounceGen++
	o.lastPartial = ""
	o.lastTranscript = text
	cfg := o.cfg
	var hints []string
	if !o.prosodyAt.IsZero() && o.now().Sub(o.prosodyAt) <= cfg.ProsodyWindow {
		hints = o.prosodyHints
	}
	o.mu.Unlock()
	defer o.end()

	o.buffer.Add(types.SpeakerSelf, text)

	timer := time.NewTimer(cfg.SemanticTimeout)
	defer timer.Stop()
	semCh := o.startSemantic(root, text)
	rules := o.keywords.Match(text)
	sem := o.awaitSemantic(ctx, semCh, timer)

	suggestions := Merge(sem, rules, cfg.SemanticPriority, o.now())
	if len(suggestions) == 0 {
		return
	}
	suggestions = ApplyIntensity(suggestions, intensity.Detect(text))
	if len(hints) > 0 {
		suggestions = prosody.AdjustSuggestions(suggestions, hints)
	}
	// Intensity and prosody shift confidences; restore the ranking.
	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].Confidence > suggestions[j].Confidence })
	if o.prefs != nil {
		suggestions = o.prefs.AdjustRanking(suggestions)
	}

	var topSem *semantic.Match
	if len(sem) > 0 {
		topSem = &sem[0]
	}

	o.mu.Lock()
	if !o.enabled {
		o.mu.Unlock()
		return
	}
	o.current = suggestions
	o.currentMedia = nil
	if o.specCancel != nil {
		o.specCancel()
		o.specCancel = nil
	}
	o.specGen++
	if o.fetchCancel != nil {
		o.fetchCancel()
		o.fetchCancel = nil
	}
	o.fetchID++
	id := o.fetchID
	var (
		fetchCtx    context.Context
		fetchCancel context.CancelFunc
	)
	if cfg.DisplayMode.suggests() && o.media != nil {
		fetchCtx, fetchCancel = context.WithCancel(root)
		o.fetchCancel = fetchCancel
	}
	o.mu.Unlock()

	o.publish(Update{Suggestions: suggestions, MediaLoading: fetchCtx != nil, Transcript: text})
	for _, s := range suggestions {
		o.metrics.RecordSuggestion(ctx, string(s.Source))
	}
	o.metrics.FinalDuration.Record(ctx, time.Since(start).Seconds())

	if cfg.DisplayMode.autoDisplays() {
		o.display.push(root, suggestions[0])
	}
	if fetchCtx != nil {
		go o.fetchPrimary(fetchCtx, fetchCancel, id, suggestions, topSem, text, cfg)
	}
}

// startSemantic begins an embedding match in the background. It returns nil
// when no semantic matcher is usable yet, in which case a load is triggered.
func (o *Orchestrator) startSemantic(root context.Context, text string) <-chan []semantic.Match {
	if o.semantic == nil {
		return nil
	}
	if !o.semantic.IsLoaded() {
		o.preloadSemantic(root)
		return nil
	}
	ch := make(chan []semantic.Match, 1)
	go func() {
		ctx, cancel := context.WithTimeout(root, semanticBackgroundTimeout)
		defer cancel()
		start := time.Now()
		ms, err := o.semantic.Match(ctx, text, -1)
		o.metrics.SemanticDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("suggest: semantic match failed", "err", err)
			}
			ms = nil
		}
		ch <- ms
	}()
	return ch
}

// awaitSemantic waits for the semantic result until timer fires. A timeout
// degrades to rule-only matching.
func (o *Orchestrator) awaitSemantic(ctx context.Context, ch <-chan []semantic.Match, timer *time.Timer) []semantic.Match {
	if ch == nil {
		return nil
	}
	select {
	case ms := <-ch:
		return ms
	case <-timer.C:
		o.metrics.SemanticTimeouts.Add(ctx, 1)
		slog.Debug("suggest: semantic match timed out, using rules only")
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (o *Orchestrator) preloadSemantic(root context.Context) {
	if o.semantic == nil || o.semantic.IsLoaded() || o.semantic.IsLoading() {
		return
	}
	go func() {
		if err := o.semantic.Load(root); err != nil && root.Err() == nil {
			slog.Warn("suggest: semantic preload failed, rule matching only", "err", err)
		}
	}()
}

// fetchPrimary loads media for a final transcript's suggestions and publishes
// them unless a newer final superseded this fetch.
func (o *Orchestrator) fetchPrimary(ctx context.Context, cancel context.CancelFunc, id uint64, suggestions []types.Suggestion, topSem *semantic.Match, text string, cfg Config) {
	defer cancel()
	start := time.Now()
	items := o.fetchMedia(ctx, suggestions, topSem, text, cfg)
	o.metrics.MediaFetchDuration.Record(ctx, time.Since(start).Seconds())

	o.mu.Lock()
	if id != o.fetchID || !o.enabled {
		o.mu.Unlock()
		slog.Debug("suggest: discarding stale media fetch", "fetch_id", id)
		return
	}
	o.fetchCancel = nil
	o.currentMedia = items
	o.mu.Unlock()

	o.publish(Update{Suggestions: suggestions, Media: items, Transcript: text})
}

// ── Other speaker ────────────────────────────────────────────────────────────

// handleOther records the other party's speech, predicts the user's likely
// reactions and prefetches media for them. Nothing is emitted.
func (o *Orchestrator) handleOther(text string) {
	o.mu.Lock()
	root, ok := o.beginLocked()
	o.mu.Unlock()
	if !ok {
		return
	}
	defer o.end()

	o.buffer.Add(types.SpeakerOther, text)

	preds := o.predictor.Predict(text)
	if len(preds) == 0 {
		return
	}
	now := o.now()
	ps := make([]types.Suggestion, len(preds))
	cats := make([]string, len(preds))
	for i, p := range preds {
		ps[i] = types.Suggestion{
			Keyword:    p.Category,
			Emoji:      p.Emoji,
			Confidence: p.Confidence,
			Source:     types.SourcePredictive,
			Timestamp:  now,
		}
		cats[i] = p.Category
	}

	o.mu.Lock()
	o.predictive = ps
	o.mu.Unlock()

	if o.cache != nil {
		go o.cache.Prefetch(root, cats)
	}
	slog.Debug("suggest: prepared predictive reactions", "count", len(ps))
}

// ── Output ───────────────────────────────────────────────────────────────────

// Subscribe returns a channel of updates and a cancel func. Slow subscribers
// miss updates rather than block the pipeline.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Update, func()) {
	return o.updates.Subscribe(buffer)
}

func (o *Orchestrator) publish(u Update) {
	if u.Timestamp.IsZero() {
		u.Timestamp = o.now()
	}
	o.updates.Publish(u)
	if o.panel != nil {
		o.panel.ShowSuggestions(u)
	}
}

// CurrentSuggestions returns a copy of the suggestions last emitted.
func (o *Orchestrator) CurrentSuggestions() []types.Suggestion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.Suggestion(nil), o.current...)
}

// CurrentMedia returns a copy of the media items last emitted.
func (o *Orchestrator) CurrentMedia() []types.MediaItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.MediaItem(nil), o.currentMedia...)
}

// PredictiveSuggestions returns the reactions predicted from the other
// party's last utterance. They are never emitted as updates.
func (o *Orchestrator) PredictiveSuggestions() []types.Suggestion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.Suggestion(nil), o.predictive...)
}

// MediaSuggestionByID finds a current media item by provider ID.
func (o *Orchestrator) MediaSuggestionByID(id string) (types.MediaItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, it := range o.currentMedia {
		if it.ID == id {
			return it, true
		}
	}
	return types.MediaItem{}, false
}

// ClearSuggestions forgets the current suggestions and media and tells
// consumers.
func (o *Orchestrator) ClearSuggestions() {
	o.mu.Lock()
	o.current, o.currentMedia = nil, nil
	o.mu.Unlock()
	o.publish(Update{})
}

// DisplaySuggestion shows s on the display sink for the auto-display
// duration.
func (o *Orchestrator) DisplaySuggestion(ctx context.Context, s types.Suggestion) error {
	if o.display.display == nil {
		return ErrNoDisplay
	}
	r, ok := reactionFor(s)
	if !ok {
		return fmt.Errorf("suggest: display suggestion %q: nothing to show", s.Keyword)
	}
	if err := o.display.display.ShowReaction(ctx, r, o.display.duration()); err != nil {
		return fmt.Errorf("suggest: display suggestion: %w", err)
	}
	return nil
}

// DisplayMedia shows the current media item with the given ID and notifies
// the media provider's analytics.
func (o *Orchestrator) DisplayMedia(ctx context.Context, id string) error {
	if o.display.display == nil {
		return ErrNoDisplay
	}
	item, ok := o.MediaSuggestionByID(id)
	if !ok {
		return fmt.Errorf("suggest: display media: unknown item %q", id)
	}
	r := Reaction{Media: &item}
	if cur := o.CurrentSuggestions(); len(cur) > 0 {
		r.Keyword = cur[0].Keyword
	}
	if err := o.display.display.ShowReaction(ctx, r, o.display.duration()); err != nil {
		return fmt.Errorf("suggest: display media: %w", err)
	}
	if as, ok := o.media.(media.AnalyticsSender); ok {
		go func() {
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := as.SendAnalytics(actx, item); err != nil {
				slog.Debug("suggest: media analytics failed", "id", item.ID, "err", err)
			}
		}()
	}
	return nil
}

// PendingDisplays returns the number of queued auto-display reactions.
func (o *Orchestrator) PendingDisplays() int {
	return o.display.pending()
}

// ── Personalisation ──────────────────────────────────────────────────────────

func (o *Orchestrator) selectionContext() preference.SelectionContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	text := o.lastTranscript
	if text == "" {
		text = o.lastPartial
	}
	sc := preference.SelectionContext{
		Transcript:  text,
		Suggestions: append([]types.Suggestion(nil), o.current...),
	}
	if len(o.current) > 0 {
		sc.Category = o.current[0].Keyword
	}
	return sc
}

// LogReactionSelection records that the user picked s from the current
// suggestions. source is [preference.SourceEmoji] or [preference.SourceMedia].
func (o *Orchestrator) LogReactionSelection(ctx context.Context, s types.Suggestion, source string) error {
	if o.prefs == nil {
		return nil
	}
	return o.prefs.LogSelection(ctx, o.selectionContext(), s, source)
}

// LogMediaSelection records that the user picked a media item.
func (o *Orchestrator) LogMediaSelection(ctx context.Context, item types.MediaItem) error {
	if o.prefs == nil {
		return nil
	}
	return o.prefs.LogMediaSelection(ctx, o.selectionContext(), item)
}

// Buffer returns the conversation buffer.
func (o *Orchestrator) Buffer() *conversation.Buffer {
	return o.buffer
}
