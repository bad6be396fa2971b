package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrWong99/emotive/internal/app"
	"github.com/MrWong99/emotive/internal/config"
	"github.com/MrWong99/emotive/internal/resilience"
	"github.com/MrWong99/emotive/pkg/kv"
	"github.com/MrWong99/emotive/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/emotive/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/emotive/pkg/provider/embeddings/openai"
	"github.com/MrWong99/emotive/pkg/provider/media"
	"github.com/MrWong99/emotive/pkg/provider/media/giphy"
	"github.com/MrWong99/emotive/pkg/provider/transcript"
	"github.com/MrWong99/emotive/pkg/provider/transcript/reconnect"
	wstranscript "github.com/MrWong99/emotive/pkg/provider/transcript/websocket"
	"github.com/MrWong99/emotive/pkg/types"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// store, when non-nil, lets providers persist small bits of state such as
// the GIPHY analytics id.
func registerBuiltinProviders(reg *config.Registry, store kv.Store) {
	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization", ""); org != "" {
			opts = append(opts, oaembed.WithOrganization(org))
		}
		if d, ok := durationOption(entry, "timeout"); ok {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		if n, ok := intOption(entry, "dimensions"); ok {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if d, ok := durationOption(entry, "timeout"); ok {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		if n, ok := intOption(entry, "dimensions"); ok {
			opts = append(opts, ollamaembed.WithDimensions(n))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── Media ─────────────────────────────────────────────────────────────────

	reg.RegisterMedia("giphy", func(entry config.ProviderEntry) (media.Provider, error) {
		opts := []giphy.Option{
			giphy.WithRating(entry.Option("rating", "")),
			giphy.WithKind(types.MediaKind(entry.Option("kind", string(types.MediaGIF)))),
		}
		if entry.BaseURL != "" {
			opts = append(opts, giphy.WithBaseURL(entry.BaseURL))
		}
		if store != nil {
			opts = append(opts, giphy.WithStore(store))
		}
		return giphy.New(entry.APIKey, opts...)
	})

	// ── Transcript ────────────────────────────────────────────────────────────

	reg.RegisterTranscript("websocket", func(entry config.ProviderEntry) (transcript.Source, error) {
		opts := []wstranscript.Option{wstranscript.WithBearerToken(entry.APIKey)}
		if n, ok := intOption(entry, "buffer"); ok {
			opts = append(opts, wstranscript.WithBuffer(n))
		}
		src, err := wstranscript.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		if !boolOption(entry, "reconnect", true) {
			return src, nil
		}
		rc := reconnect.Config{}
		if n, ok := intOption(entry, "max_retries"); ok {
			rc.MaxRetries = n
		}
		if d, ok := durationOption(entry, "max_backoff"); ok {
			rc.MaxBackoff = d
		}
		return reconnect.New(src, entry.Name, rc), nil
	})
}

// buildProviders instantiates the configured providers. Fallback entries wrap
// their primary in a circuit-breaking failover group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{Healthy: make(map[string]func() bool)}
	pc := cfg.Providers

	if pc.Embeddings.Name != "" {
		primary, err := reg.CreateEmbeddings(pc.Embeddings)
		if err != nil {
			return nil, err
		}
		ps.Embeddings = primary
		if pc.EmbeddingsFallback.Name != "" {
			fb, err := reg.CreateEmbeddings(pc.EmbeddingsFallback)
			if err != nil {
				return nil, err
			}
			group := resilience.NewEmbeddingsFallback(primary, pc.Embeddings.Name, fallbackConfig("embeddings"))
			if err := group.AddFallback(pc.EmbeddingsFallback.Name, fb); err != nil {
				return nil, err
			}
			ps.Embeddings = group
			ps.Healthy["embeddings"] = group.Healthy
		}
	}

	if pc.Media.Name != "" {
		primary, err := reg.CreateMedia(pc.Media)
		if err != nil {
			return nil, err
		}
		ps.Media = primary
		if pc.MediaFallback.Name != "" {
			fb, err := reg.CreateMedia(pc.MediaFallback)
			if err != nil {
				return nil, err
			}
			group := resilience.NewMediaFallback(primary, pc.Media.Name, fallbackConfig("media"))
			group.AddFallback(pc.MediaFallback.Name, fb)
			ps.Media = group
			ps.Healthy["media"] = group.Healthy
		}
	}

	if pc.Transcript.Name != "" {
		src, err := reg.CreateTranscript(pc.Transcript)
		if err != nil {
			return nil, err
		}
		ps.Transcript = src
	}
	return ps, nil
}

func fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "kind", kind, "provider", name, "from", from.String(), "to", to.String())
			},
		},
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// intOption reads an integer provider option. YAML decodes numbers as int,
// but quoted values arrive as strings.
func intOption(entry config.ProviderEntry, key string) (int, bool) {
	switch v := entry.Options[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("ignoring non-numeric provider option", "provider", entry.Name, "option", key, "value", v)
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// boolOption reads a boolean provider option, accepting both YAML booleans
// and quoted strings.
func boolOption(entry config.ProviderEntry, key string, def bool) bool {
	switch v := entry.Options[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("ignoring non-boolean provider option", "provider", entry.Name, "option", key, "value", v)
			return def
		}
		return b
	default:
		return def
	}
}

// durationOption reads a Go duration string such as "10s".
func durationOption(entry config.ProviderEntry, key string) (time.Duration, bool) {
	s := entry.Option(key, "")
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider duration", "provider", entry.Name, "option", key, "value", s)
		return 0, false
	}
	return d, true
}

// describeProvider renders a provider entry for the startup summary.
func describeProvider(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return fmt.Sprintf("%s / %s", e.Name, e.Model)
	default:
		return e.Name
	}
}
