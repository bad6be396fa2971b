// Package app wires all emotive subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens storage and builds the
// matchers, the suggestion pipeline and the HTTP surface, Run serves until
// the context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emotive/internal/config"
	"github.com/MrWong99/emotive/internal/conversation"
	"github.com/MrWong99/emotive/internal/health"
	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/mcp"
	"github.com/MrWong99/emotive/internal/mediacache"
	"github.com/MrWong99/emotive/internal/observe"
	"github.com/MrWong99/emotive/internal/predict"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/internal/suggest"
	"github.com/MrWong99/emotive/internal/taxonomy"
	"github.com/MrWong99/emotive/internal/web"
	"github.com/MrWong99/emotive/pkg/kv"
	"github.com/MrWong99/emotive/pkg/kv/file"
	"github.com/MrWong99/emotive/pkg/kv/postgres"
	"github.com/MrWong99/emotive/pkg/kv/sqlite"
	"github.com/MrWong99/emotive/pkg/provider/embeddings"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/provider/transcript"
)

// shutdownGrace bounds how long in-flight HTTP requests may take once Run's
// context is cancelled.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by the command layer via the config
// registry.
type Providers struct {
	Embeddings embeddings.Provider
	Media      media.Provider
	Transcript transcript.Source

	// Healthy reports provider breaker health by name. Entries become
	// optional readiness checks.
	Healthy map[string]func() bool
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	store   kv.Store
	metrics *observe.Metrics

	tax       *taxonomy.Taxonomy
	keywords  *keyword.Matcher
	semantic  *semantic.Matcher
	predictor *predict.Predictor
	prefs     *preference.Tracker
	hub       *web.Hub
	orch      *suggest.Orchestrator
	tools     *mcp.Server
	handler   http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a kv store instead of opening the configured backend.
// The caller keeps ownership and closes it.
func WithStore(s kv.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from the command layer (populated via the config registry). A nil
// providers value runs rules-only without media or a transcript feed.
//
// New performs all initialisation synchronously: opening storage, loading
// custom mappings and the preference profile, and assembling the pipeline
// and its HTTP surface. The semantic matcher loads lazily on enable.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	p := &Providers{}
	if providers != nil {
		*p = *providers
	}
	a := &App{
		cfg:       cfg,
		providers: p,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.meter()

	if err := a.initStorage(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := a.initMatchers(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.initPipeline()
	a.initServer()
	return a, nil
}

// initStorage opens the configured kv backend unless one was injected.
func (a *App) initStorage(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	st := a.cfg.Storage
	if p := a.providers.Embeddings; st.Backend == config.StoragePostgres && p != nil && p.Dimensions() > 0 && p.Dimensions() != st.VectorDimensions {
		slog.Warn("app: storage.vector_dimensions differs from the embedding model; saving centroids will fail",
			"configured", st.VectorDimensions, "model", p.ModelID(), "model_dimensions", p.Dimensions())
	}
	store, err := OpenStore(ctx, st)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	slog.Info("storage ready", "backend", st.Backend)
	return nil
}

// OpenStore opens the kv backend selected by st. The caller closes it.
func OpenStore(ctx context.Context, st config.StorageConfig) (kv.Store, error) {
	var (
		store kv.Store
		err   error
	)
	switch st.Backend {
	case config.StorageSQLite:
		store, err = sqlite.New(st.Path)
	case config.StoragePostgres:
		store, err = postgres.NewStore(ctx, st.DSN, st.VectorDimensions)
	default:
		store, err = file.New(st.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", st.Backend, err)
	}
	return store, nil
}

// initMatchers builds the keyword and semantic matchers, the predictor and
// the preference tracker, and loads their persisted state.
func (a *App) initMatchers(ctx context.Context) error {
	a.tax = taxonomy.Default()
	if path := a.cfg.Taxonomy.Path; path != "" {
		t, err := taxonomy.Load(path)
		if err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}
		a.tax = t
	}

	p := a.cfg.Pipeline
	a.keywords = keyword.New(
		keyword.WithStore(a.store),
		keyword.WithCooldown(p.Cooldown),
		keyword.WithMinConfidence(p.MinConfidence),
		keyword.WithMaxSuggestions(p.MaxSuggestions),
		keyword.WithPhoneticMatching(p.PhoneticMatching),
	)
	if err := a.keywords.LoadCustomMappings(ctx); err != nil {
		slog.Warn("app: custom mappings unavailable, using built-ins only", "err", err)
	}

	if emb := a.providers.Embeddings; emb != nil {
		opts := []semantic.Option{
			semantic.WithTaxonomy(a.tax),
			semantic.WithThreshold(p.SemanticThreshold),
			semantic.WithCacheSize(a.cfg.Cache.EmbeddingCacheSize),
			semantic.WithProgress(func(pct int, status string) {
				slog.Debug("semantic load progress", "percent", pct, "status", status)
			}),
		}
		if vs, ok := a.store.(kv.VectorStore); ok {
			opts = append(opts, semantic.WithVectorStore(vs))
		}
		a.semantic = semantic.New(emb, opts...)
		a.closers = append(a.closers, a.semantic.Close)
	}

	a.predictor = predict.New()

	a.prefs = preference.New(preference.WithStore(a.store))
	if err := a.prefs.Load(ctx); err != nil {
		slog.Warn("app: preference profile unavailable, starting fresh", "err", err)
	}
	return nil
}

// initPipeline assembles the orchestrator and its websocket sinks.
func (a *App) initPipeline() {
	a.hub = web.NewHub(web.WithHubMetrics(a.metrics))

	now := time.Now
	opts := []suggest.Option{
		suggest.WithConfig(PipelineConfig(a.cfg.Pipeline)),
		suggest.WithPredictor(a.predictor),
		suggest.WithPreferences(a.prefs),
		suggest.WithBuffer(conversation.New(a.cfg.Conversation.MaxEntries, a.cfg.Conversation.MaxAge)),
		suggest.WithQueryCache(mediacache.NewQueryCache(a.cfg.Cache.QueryTTL, a.cfg.Cache.QueryMaxSize, now)),
		suggest.WithPanel(a.hub),
		suggest.WithDisplay(a.hub),
		suggest.WithMetrics(a.metrics),
	}
	if a.semantic != nil {
		opts = append(opts, suggest.WithSemantic(a.semantic))
	}
	if m := a.providers.Media; m != nil {
		opts = append(opts,
			suggest.WithMediaProvider(m),
			suggest.WithMediaCache(mediacache.New(m,
				mediacache.WithTTL(a.cfg.Cache.TTL),
				mediacache.WithMaxSize(a.cfg.Cache.MaxSize),
				mediacache.WithPerCategory(a.cfg.Cache.PerCategory),
				mediacache.WithPredictor(a.predictor),
			)),
		)
	}
	if src := a.providers.Transcript; src != nil {
		opts = append(opts, suggest.WithSource(src))
	}
	a.orch = suggest.New(a.keywords, opts...)
	a.closers = append(a.closers, a.orch.Disable, func() error {
		a.hub.Close()
		return nil
	})
}

// initServer builds the MCP tool server, readiness checks and HTTP router.
func (a *App) initServer() {
	p := a.cfg.Pipeline
	toolOpts := []mcp.Option{
		mcp.WithPredictor(a.predictor),
		mcp.WithPreferences(a.prefs),
		mcp.WithSemanticPriority(p.SemanticPriority),
		mcp.WithMetrics(a.metrics),
		mcp.WithVersion(a.version),
	}
	if a.semantic != nil {
		toolOpts = append(toolOpts, mcp.WithSemantic(a.semantic))
	}
	if a.providers.Media != nil {
		toolOpts = append(toolOpts, mcp.WithMediaProvider(a.providers.Media))
	}
	a.tools = mcp.New(a.keywords, toolOpts...)

	srvOpts := []web.Option{
		web.WithPreferences(a.prefs),
		web.WithPredictor(a.predictor),
		web.WithHub(a.hub),
		web.WithHealth(health.New(a.checks()...)),
		web.WithMetrics(a.metrics),
	}
	if path := a.cfg.Server.MCPPath; path != "" {
		srvOpts = append(srvOpts, web.WithMCP(path, a.tools.Handler()))
	}
	a.handler = web.New(a.orch, a.keywords, srvOpts...)
}

// checks returns the readiness checks. Storage is required; semantic
// availability and provider breakers only degrade readiness.
func (a *App) checks() []health.Checker {
	var cs []health.Checker
	if p, ok := a.store.(health.Pinger); ok {
		cs = append(cs, health.PingCheck("storage", p))
	}
	if a.semantic != nil {
		sem := a.semantic
		cs = append(cs, health.FlagCheck("semantic", true, func() bool {
			return sem.IsLoaded() || !a.orch.Enabled()
		}, "centroids not loaded"))
	}
	for name, ok := range a.providers.Healthy {
		cs = append(cs, health.FlagCheck(name, true, ok, "all circuit breakers open"))
	}
	return cs
}

// PipelineConfig converts the pipeline section of the config into the
// orchestrator's tunables.
func PipelineConfig(p config.PipelineConfig) suggest.Config {
	c := suggest.DefaultConfig()
	c.DisplayMode = suggest.DisplayMode(p.DisplayMode)
	c.AutoDisplayDuration = p.AutoDisplayDuration
	c.PartialDebounce = p.PartialDebounce
	c.SpeculativeFetchInterval = p.SpeculativeFetchInterval
	c.SemanticTimeout = p.SemanticTimeout
	c.SemanticPriority = p.SemanticPriority
	c.MaxMediaQueries = p.MaxMediaQueries
	c.MaxMediaItems = p.MaxMediaItems
	c.MediaPerQuery = p.MediaPerQuery
	return c
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP surface: REST API, websocket, probes, metrics and
// the optional MCP endpoint.
func (a *App) Handler() http.Handler { return a.handler }

// Orchestrator returns the suggestion pipeline.
func (a *App) Orchestrator() *suggest.Orchestrator { return a.orch }

// Keywords returns the keyword matcher.
func (a *App) Keywords() *keyword.Matcher { return a.keywords }

// Preferences returns the preference tracker.
func (a *App) Preferences() *preference.Tracker { return a.prefs }

// Predictor returns the reaction predictor.
func (a *App) Predictor() *predict.Predictor { return a.predictor }

// Semantic returns the semantic matcher, or nil without an embeddings
// provider.
func (a *App) Semantic() *semantic.Matcher { return a.semantic }

// Tools returns the MCP tool server.
func (a *App) Tools() *mcp.Server { return a.tools }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig hot-applies pipeline tunables from a reloaded config. Changes
// that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(next *config.Config, d config.ConfigDiff) {
	if d.PipelineChanged() {
		p := next.Pipeline
		a.keywords.SetCooldown(p.Cooldown)
		a.keywords.SetMinConfidence(p.MinConfidence)
		a.keywords.SetMaxSuggestions(p.MaxSuggestions)
		if a.semantic != nil {
			a.semantic.SetThreshold(p.SemanticThreshold)
		}
		a.orch.ApplyConfig(PipelineConfig(p))
		a.cfg.Pipeline = p
		slog.Info("config: pipeline tunables applied", "fields", d.PipelineFields)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the listener fails. When server.auto_enable is set the
// pipeline is enabled first. On cancellation Run drains in-flight requests
// and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a.serve(ctx, srv, func() error {
		if tls := a.cfg.Server.TLS; tls != nil {
			return srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		}
		return srv.ListenAndServe()
	})
}

// serve runs listen until ctx is done, then shuts srv down.
func (a *App) serve(ctx context.Context, srv *http.Server, listen func() error) error {
	a.hub.Forward(ctx, a.keywords, a.prefs)

	if a.cfg.Server.AutoEnable {
		if err := a.orch.Enable(ctx); err != nil {
			return fmt.Errorf("app: auto-enable: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		a.hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New managed to open before failing.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
