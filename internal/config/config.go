// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the emotive server.
package config

import "time"

// LogLevel controls log verbosity for the emotive server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where custom mappings, preferences and centroids
// are persisted.
type StorageBackend string

const (
	StorageFile     StorageBackend = "file"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageFile, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for emotive.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Cache        CacheConfig        `yaml:"cache"`
	Conversation ConversationConfig `yaml:"conversation"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Storage      StorageConfig      `yaml:"storage"`
	Taxonomy     TaxonomyConfig     `yaml:"taxonomy"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// MCPPath, when non-empty, mounts the MCP tool server at this HTTP path.
	MCPPath string `yaml:"mcp_path"`

	// AutoEnable starts the suggestion pipeline at boot.
	AutoEnable bool `yaml:"auto_enable"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// PipelineConfig holds the runtime tunables of the suggestion pipeline. All
// of them can be hot-reloaded. Out-of-range values are clamped by [Validate]
// rather than rejected.
type PipelineConfig struct {
	Cooldown                 time.Duration `yaml:"cooldown"`
	MinConfidence            float64       `yaml:"min_confidence"`
	MaxSuggestions           int           `yaml:"max_suggestions"`
	DisplayMode              string        `yaml:"display_mode"`
	AutoDisplayDuration      time.Duration `yaml:"auto_display_duration"`
	PartialDebounce          time.Duration `yaml:"partial_debounce"`
	SpeculativeFetchInterval time.Duration `yaml:"speculative_fetch_interval"`
	SemanticTimeout          time.Duration `yaml:"semantic_timeout"`
	SemanticThreshold        float64       `yaml:"semantic_threshold"`
	SemanticPriority         float64       `yaml:"semantic_priority"`
	MaxMediaQueries          int           `yaml:"max_media_queries"`
	MaxMediaItems            int           `yaml:"max_media_items"`
	MediaPerQuery            int           `yaml:"media_per_query"`

	// PhoneticMatching enables the sound-alike keyword stage.
	PhoneticMatching bool `yaml:"phonetic_matching"`
}

// CacheConfig sizes the speculative category cache and the per-query cache.
type CacheConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	MaxSize      int           `yaml:"max_size"`
	PerCategory  int           `yaml:"per_category"`
	QueryTTL     time.Duration `yaml:"query_ttl"`
	QueryMaxSize int           `yaml:"query_max_size"`

	// EmbeddingCacheSize bounds the semantic matcher's embedding LRU.
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`
}

// ConversationConfig bounds the conversation buffer.
type ConversationConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	MaxAge     time.Duration `yaml:"max_age"`
}

// ProvidersConfig declares which provider implementation to use for each
// external dependency. Each entry selects a named provider registered in the
// [Registry]. An empty name disables the dependency.
type ProvidersConfig struct {
	Embeddings         ProviderEntry `yaml:"embeddings"`
	EmbeddingsFallback ProviderEntry `yaml:"embeddings_fallback"`
	Media              ProviderEntry `yaml:"media"`
	MediaFallback      ProviderEntry `yaml:"media_fallback"`
	Transcript         ProviderEntry `yaml:"transcript"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "giphy").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// Option returns the string value of a provider option, or def when unset.
func (e ProviderEntry) Option(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// Path is the directory of the file backend or the database file of the
	// sqlite backend.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string of the postgres backend.
	DSN string `yaml:"dsn"`

	// VectorDimensions sizes the centroid column of the postgres backend.
	// Must match the embedding model.
	VectorDimensions int `yaml:"vector_dimensions"`
}

// TaxonomyConfig points at an optional custom category taxonomy.
type TaxonomyConfig struct {
	// Path is a YAML taxonomy file. Empty uses the built-in taxonomy.
	Path string `yaml:"path"`
}
