package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embeddings": {"openai", "ollama"},
	"media":      {"giphy"},
	"transcript": {"websocket"},
}

// Load reads the YAML configuration file at path, expands ${VAR} references
// from the environment and returns a validated [Config] with defaults
// applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result. Unknown keys are
// rejected. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	setDefault(&s.ListenAddr, ":8080")
	setDefault(&s.LogLevel, LogInfo)

	p := &cfg.Pipeline
	setDefault(&p.Cooldown, 5*time.Second)
	setDefault(&p.MinConfidence, 0.5)
	setDefault(&p.MaxSuggestions, 3)
	setDefault(&p.DisplayMode, "suggest")
	setDefault(&p.AutoDisplayDuration, 3*time.Second)
	setDefault(&p.PartialDebounce, 150*time.Millisecond)
	setDefault(&p.SpeculativeFetchInterval, 500*time.Millisecond)
	setDefault(&p.SemanticTimeout, 50*time.Millisecond)
	setDefault(&p.SemanticThreshold, 0.55)
	setDefault(&p.SemanticPriority, 0.65)
	setDefault(&p.MaxMediaQueries, 2)
	setDefault(&p.MaxMediaItems, 6)
	setDefault(&p.MediaPerQuery, 3)

	c := &cfg.Cache
	setDefault(&c.TTL, 2*time.Minute)
	setDefault(&c.MaxSize, 15)
	setDefault(&c.PerCategory, 4)
	setDefault(&c.QueryTTL, time.Minute)
	setDefault(&c.QueryMaxSize, 20)
	setDefault(&c.EmbeddingCacheSize, 100)

	cv := &cfg.Conversation
	setDefault(&cv.MaxEntries, 20)
	setDefault(&cv.MaxAge, 60*time.Second)

	st := &cfg.Storage
	setDefault(&st.Backend, StorageFile)
	if st.Backend == StorageFile {
		setDefault(&st.Path, "./data")
	}
	if st.Backend == StorageSQLite {
		setDefault(&st.Path, "./emotive.db")
	}
	setDefault(&st.VectorDimensions, 1536)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values. Structural
// problems are returned as a joined error listing every failure found.
// Out-of-range pipeline tunables are clamped in place and logged instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	switch cfg.Pipeline.DisplayMode {
	case "", "auto", "suggest", "both":
	default:
		errs = append(errs, fmt.Errorf("pipeline.display_mode %q is invalid; valid values: auto, suggest, both", cfg.Pipeline.DisplayMode))
	}
	clampPipeline(&cfg.Pipeline)

	validateProvider("embeddings", cfg.Providers.Embeddings)
	validateProvider("embeddings", cfg.Providers.EmbeddingsFallback)
	validateProvider("media", cfg.Providers.Media)
	validateProvider("media", cfg.Providers.MediaFallback)
	validateProvider("transcript", cfg.Providers.Transcript)

	if cfg.Providers.EmbeddingsFallback.Name != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("providers.embeddings_fallback requires providers.embeddings"))
	}
	if cfg.Providers.MediaFallback.Name != "" && cfg.Providers.Media.Name == "" {
		errs = append(errs, errors.New("providers.media_fallback requires providers.media"))
	}
	if cfg.Providers.Media.Name == "giphy" && cfg.Providers.Media.APIKey == "" {
		errs = append(errs, errors.New("providers.media.api_key is required for giphy"))
	}

	st := cfg.Storage
	switch {
	case st.Backend != "" && !st.Backend.IsValid():
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, sqlite, postgres", st.Backend))
	case st.Backend == StoragePostgres && st.DSN == "":
		errs = append(errs, errors.New("storage.dsn is required for the postgres backend"))
	case (st.Backend == StorageFile || st.Backend == StorageSQLite) && st.Path == "":
		errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", st.Backend))
	}
	if st.VectorDimensions < 0 {
		errs = append(errs, fmt.Errorf("storage.vector_dimensions %d must not be negative", st.VectorDimensions))
	}

	if cfg.Conversation.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_entries %d must not be negative", cfg.Conversation.MaxEntries))
	}
	if cfg.Cache.MaxSize < 0 || cfg.Cache.QueryMaxSize < 0 || cfg.Cache.PerCategory < 0 {
		errs = append(errs, errors.New("cache sizes must not be negative"))
	}

	return errors.Join(errs...)
}

// clampPipeline forces tunables into their valid ranges.
func clampPipeline(p *PipelineConfig) {
	clamp := func(name string, v, lo, hi float64) float64 {
		c := min(max(v, lo), hi)
		if c != v {
			slog.Warn("config: clamped out-of-range value", "field", name, "value", v, "clamped", c)
		}
		return c
	}
	clampDur := func(name string, v, lo, hi time.Duration) time.Duration {
		c := min(max(v, lo), hi)
		if c != v {
			slog.Warn("config: clamped out-of-range value", "field", name, "value", v, "clamped", c)
		}
		return c
	}

	p.Cooldown = clampDur("pipeline.cooldown", p.Cooldown, 0, time.Hour)
	p.MinConfidence = clamp("pipeline.min_confidence", p.MinConfidence, 0, 1)
	p.MaxSuggestions = int(clamp("pipeline.max_suggestions", float64(p.MaxSuggestions), 1, 10))
	p.AutoDisplayDuration = clampDur("pipeline.auto_display_duration", p.AutoDisplayDuration, time.Second, 10*time.Second)
	p.PartialDebounce = clampDur("pipeline.partial_debounce", p.PartialDebounce, 0, 5*time.Second)
	p.SpeculativeFetchInterval = clampDur("pipeline.speculative_fetch_interval", p.SpeculativeFetchInterval, 0, time.Minute)
	p.SemanticTimeout = clampDur("pipeline.semantic_timeout", p.SemanticTimeout, time.Millisecond, 5*time.Second)
	p.SemanticThreshold = clamp("pipeline.semantic_threshold", p.SemanticThreshold, 0, 1)
	p.SemanticPriority = clamp("pipeline.semantic_priority", p.SemanticPriority, 0, 1)
	p.MaxMediaQueries = int(clamp("pipeline.max_media_queries", float64(p.MaxMediaQueries), 1, 3))
	p.MaxMediaItems = int(clamp("pipeline.max_media_items", float64(p.MaxMediaItems), 1, 50))
	p.MediaPerQuery = int(clamp("pipeline.media_per_query", float64(p.MediaPerQuery), 1, 50))
}

// validateProvider logs a warning if the entry names a provider not found in
// [ValidProviderNames] for the given kind.
func validateProvider(kind string, e ProviderEntry) {
	if e.Name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, e.Name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", e.Name,
		"known", known,
	)
}
