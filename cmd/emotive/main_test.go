package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/emotive/internal/config"
	"github.com/MrWong99/emotive/internal/resilience"
	"github.com/MrWong99/emotive/pkg/provider/embeddings"
	embmock "github.com/MrWong99/emotive/pkg/provider/embeddings/mock"
	"github.com/MrWong99/emotive/pkg/provider/media"
	mediamock "github.com/MrWong99/emotive/pkg/provider/media/mock"
	"github.com/MrWong99/emotive/pkg/provider/transcript/reconnect"
)

// ── CLI ──────────────────────────────────────────────────────────────────────

// run executes the root command against a config whose file storage lives in
// dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		yaml := "storage:\n  backend: file\n  path: " + filepath.Join(dir, "data") + "\n"
		if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, ".env")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "analyze", "lol", "that's", "so", "funny!!!")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var got analysis
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Text != "lol that's so funny!!!" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Suggestions) == 0 || got.Suggestions[0].Emoji != "😂" {
		t.Errorf("Suggestions = %+v, want 😂 first", got.Suggestions)
	}
	if got.Intensity.Level == "" {
		t.Error("Intensity.Level is empty")
	}
}

func TestMappingsSetListRemove(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, dir, "mappings", "set", "yeet", "--emoji", "🚀"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := run(t, dir, "mappings", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "yeet") || !strings.Contains(out, "🚀") {
		t.Errorf("list output = %q, want the new mapping", out)
	}

	out, err = run(t, dir, "analyze", "yeet")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "🚀") {
		t.Errorf("analyze output does not use the stored mapping: %q", out)
	}

	if _, err := run(t, dir, "mappings", "remove", "yeet"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, err = run(t, dir, "mappings", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out, "yeet") {
		t.Errorf("list output = %q, want mapping removed", out)
	}
}

func TestMappingsSetRequiresReaction(t *testing.T) {
	dir := t.TempDir()
	mappingEmoji, mappingText = "", ""
	if _, err := run(t, dir, "mappings", "set", "yeet"); err == nil {
		t.Error("set without --emoji or --text succeeded")
	}
}

func TestPrefsExportImport(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "prefs.json")
	if _, err := run(t, dir, "prefs", "export", "--output", doc); err != nil {
		t.Fatalf("export: %v", err)
	}
	prefsOutput = ""
	if _, err := os.Stat(doc); err != nil {
		t.Fatalf("export did not write %s: %v", doc, err)
	}
	out, err := run(t, dir, "prefs", "import", doc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 0 selections") {
		t.Errorf("import output = %q", out)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"version": 99}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, dir, "prefs", "import", bad); err == nil {
		t.Error("import of an unsupported version succeeded")
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "prefs", "stats"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("explicit missing config did not fail")
	}
}

// ── Provider wiring ──────────────────────────────────────────────────────────

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterEmbeddings("a", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{DimensionsValue: 4, ModelIDValue: "m"}, nil
	})
	reg.RegisterEmbeddings("b", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{DimensionsValue: 4, ModelIDValue: "m"}, nil
	})
	reg.RegisterMedia("x", func(config.ProviderEntry) (media.Provider, error) { return &mediamock.Provider{}, nil })
	reg.RegisterMedia("y", func(config.ProviderEntry) (media.Provider, error) { return &mediamock.Provider{}, nil })

	cfg := config.Default()
	cfg.Providers.Embeddings.Name = "a"
	cfg.Providers.EmbeddingsFallback.Name = "b"
	cfg.Providers.Media.Name = "x"
	cfg.Providers.MediaFallback.Name = "y"

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if _, ok := ps.Embeddings.(*resilience.EmbeddingsFallback); !ok {
		t.Errorf("Embeddings = %T, want *resilience.EmbeddingsFallback", ps.Embeddings)
	}
	if _, ok := ps.Media.(*resilience.MediaFallback); !ok {
		t.Errorf("Media = %T, want *resilience.MediaFallback", ps.Media)
	}
	for _, name := range []string{"embeddings", "media"} {
		if ok := ps.Healthy[name]; ok == nil || !ok() {
			t.Errorf("Healthy[%q] missing or unhealthy", name)
		}
	}
	if ps.Transcript != nil {
		t.Error("Transcript set without configuration")
	}
}

func TestBuildProviders_MismatchedEmbeddingsFallback(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterEmbeddings("a", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{DimensionsValue: 4, ModelIDValue: "m"}, nil
	})
	reg.RegisterEmbeddings("b", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embmock.Provider{DimensionsValue: 8, ModelIDValue: "other"}, nil
	})
	cfg := config.Default()
	cfg.Providers.Embeddings.Name = "a"
	cfg.Providers.EmbeddingsFallback.Name = "b"

	if _, err := buildProviders(cfg, reg); err == nil {
		t.Error("buildProviders accepted a fallback serving a different model")
	}
}

func TestBuildProviders_Builtins(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, nil)

	cfg := config.Default()
	cfg.Providers.Media = config.ProviderEntry{Name: "giphy", APIKey: "k", Options: map[string]any{"kind": "sticker", "rating": "pg"}}
	cfg.Providers.Transcript = config.ProviderEntry{Name: "websocket", BaseURL: "ws://localhost:9000/stream"}
	cfg.Providers.Embeddings = config.ProviderEntry{Name: "ollama", Model: "nomic-embed-text", Options: map[string]any{"dimensions": 768}}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.Media == nil || ps.Transcript == nil || ps.Embeddings == nil {
		t.Fatalf("providers = %+v, want all set", ps)
	}
	if got := ps.Embeddings.Dimensions(); got != 768 {
		t.Errorf("Dimensions() = %d, want 768", got)
	}
	if _, ok := ps.Transcript.(*reconnect.Source); !ok {
		t.Errorf("Transcript = %T, want the reconnecting wrapper", ps.Transcript)
	}

	cfg.Providers.Transcript.Options = map[string]any{"reconnect": false}
	ps, err = buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders without reconnect: %v", err)
	}
	if _, ok := ps.Transcript.(*reconnect.Source); ok {
		t.Error("reconnect: false still wrapped the transcript source")
	}

	cfg.Providers.Transcript.BaseURL = "http://not-a-websocket"
	if _, err := buildProviders(cfg, reg); err == nil {
		t.Error("buildProviders accepted a non-websocket transcript url")
	}
}

func TestProviderOptions(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Name: "p", Options: map[string]any{
		"n":       12,
		"f":       3.0,
		"s":       "7",
		"bad":     "seven",
		"timeout": "1500ms",
		"junk":    "soon",
	}}
	for key, want := range map[string]int{"n": 12, "f": 3, "s": 7} {
		if got, ok := intOption(e, key); !ok || got != want {
			t.Errorf("intOption(%q) = %d, %v; want %d", key, got, ok, want)
		}
	}
	if _, ok := intOption(e, "bad"); ok {
		t.Error("intOption accepted a non-numeric string")
	}
	if _, ok := intOption(e, "missing"); ok {
		t.Error("intOption reported a missing key")
	}
	if d, ok := durationOption(e, "timeout"); !ok || d != 1500*time.Millisecond {
		t.Errorf("durationOption(timeout) = %v, %v", d, ok)
	}
	if _, ok := durationOption(e, "junk"); ok {
		t.Error("durationOption accepted an invalid duration")
	}

	b := config.ProviderEntry{Options: map[string]any{"yes": true, "no": "false", "junk": "perhaps"}}
	if !boolOption(b, "yes", false) || boolOption(b, "no", true) {
		t.Error("boolOption misread an explicit value")
	}
	if !boolOption(b, "junk", true) || !boolOption(b, "missing", true) {
		t.Error("boolOption did not fall back to the default")
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	if slogLevel(config.LogDebug) >= slogLevel(config.LogInfo) {
		t.Error("debug is not below info")
	}
	if slogLevel(config.LogError) <= slogLevel(config.LogWarn) {
		t.Error("error is not above warn")
	}
	if slogLevel("") != slogLevel(config.LogInfo) {
		t.Error("empty level does not default to info")
	}
}
