package mcp

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/internal/taxonomy"
	embmock "github.com/MrWong99/emotive/pkg/provider/embeddings/mock"
	mediamock "github.com/MrWong99/emotive/pkg/provider/media/mock"
	"github.com/MrWong99/emotive/pkg/types"
)

// connect serves s over an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcpsdk.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// call invokes a tool and decodes its JSON text result into out. It returns
// the result's error text when the tool failed.
func call(t *testing.T, cs *mcpsdk.ClientSession, name string, args any, out any) string {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T, want text", name, res.Content[0])
	}
	if res.IsError {
		return tc.Text
	}
	if out != nil {
		if err := json.Unmarshal([]byte(tc.Text), out); err != nil {
			t.Fatalf("decode %s result %q: %v", name, tc.Text, err)
		}
	}
	return ""
}

func toolNames(t *testing.T, cs *mcpsdk.ClientSession) []string {
	t.Helper()
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	return names
}

// ── Catalogue ────────────────────────────────────────────────────────────────

func TestServer_ToolCatalogue(t *testing.T) {
	t.Parallel()

	base := toolNames(t, connect(t, New(keyword.New())))
	want := []string{ToolAddMapping, ToolDetectIntensity, ToolPredictReactions, ToolSuggestReactions}
	if !slices.Equal(base, want) {
		t.Errorf("base tools = %v, want %v", base, want)
	}

	full := toolNames(t, connect(t, New(keyword.New(),
		WithMediaProvider(&mediamock.Provider{}),
		WithPreferences(preference.New()),
	)))
	if !slices.Contains(full, ToolSearchMedia) || !slices.Contains(full, ToolPreferenceStats) {
		t.Errorf("full tools = %v, want media and preference tools", full)
	}
}

// ── suggest_reactions ────────────────────────────────────────────────────────

func TestSuggestReactions_RulesOnly(t *testing.T) {
	t.Parallel()
	kw := keyword.New()
	cs := connect(t, New(kw))

	var out SuggestOutput
	if msg := call(t, cs, ToolSuggestReactions, map[string]any{"text": "lol that's SO funny!!!"}, &out); msg != "" {
		t.Fatalf("tool error: %s", msg)
	}
	if len(out.Suggestions) == 0 || out.Suggestions[0].Emoji != "😂" {
		t.Errorf("suggestions = %+v, want 😂 first", out.Suggestions)
	}
	if out.SemanticUsed {
		t.Error("SemanticUsed = true without a semantic matcher")
	}
	if out.Intensity.Level == "" || out.Suggestions[0].IntensityLevel != string(out.Intensity.Level) {
		t.Errorf("intensity not applied: %+v", out)
	}

	// Tool calls never arm the live pipeline's cooldowns.
	if got := kw.Match("lol"); len(got) != 1 {
		t.Errorf("Match after tool call = %v, want lol", got)
	}
}

func TestSuggestReactions_Semantic(t *testing.T) {
	t.Parallel()
	tax, err := taxonomy.Parse([]byte(`contexts:
  - name: casual
    categories:
      - name: humor
        emoji: "🤣"
        anchors: ["lol"]
        media_patterns: ["laughing crying"]
`))
	if err != nil {
		t.Fatal(err)
	}
	sem := semantic.New(&embmock.Provider{
		Vectors:         map[string][]float32{"lol": {1, 0}},
		EmbedFunc:       func(string) []float32 { return []float32{1, 0} },
		DimensionsValue: 2,
	}, semantic.WithTaxonomy(tax))
	if err := sem.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	cs := connect(t, New(keyword.New(), WithSemantic(sem)))
	var out SuggestOutput
	if msg := call(t, cs, ToolSuggestReactions, map[string]any{"text": "that cracked me up"}, &out); msg != "" {
		t.Fatalf("tool error: %s", msg)
	}
	if !out.SemanticUsed {
		t.Error("SemanticUsed = false with a loaded matcher")
	}
	if len(out.Suggestions) == 0 || out.Suggestions[0].Source != types.SourceSemantic {
		t.Errorf("suggestions = %+v, want semantic first", out.Suggestions)
	}
}

func TestSuggestReactions_EmptyText(t *testing.T) {
	t.Parallel()
	cs := connect(t, New(keyword.New()))
	if msg := call(t, cs, ToolSuggestReactions, map[string]any{"text": "   "}, nil); !strings.Contains(msg, "empty") {
		t.Errorf("error = %q, want empty text error", msg)
	}
}

// ── Other tools ──────────────────────────────────────────────────────────────

func TestPredictReactions(t *testing.T) {
	t.Parallel()
	cs := connect(t, New(keyword.New()))
	var out PredictOutput
	if msg := call(t, cs, ToolPredictReactions, map[string]any{"text": "We won! Great news everyone"}, &out); msg != "" {
		t.Fatalf("tool error: %s", msg)
	}
	if len(out.Predictions) == 0 || !out.Likely {
		t.Errorf("out = %+v, want likely predictions", out)
	}
}

func TestDetectIntensity(t *testing.T) {
	t.Parallel()
	cs := connect(t, New(keyword.New()))
	var out IntensityOutput
	if msg := call(t, cs, ToolDetectIntensity, map[string]any{"text": "THIS IS ABSOLUTELY AMAZING!!!"}, &out); msg != "" {
		t.Fatalf("tool error: %s", msg)
	}
	if !out.IsElevated() || out.Description == "" {
		t.Errorf("out = %+v, want elevated with description", out)
	}
}

func TestAddMapping(t *testing.T) {
	t.Parallel()
	kw := keyword.New()
	cs := connect(t, New(kw))

	var out MappingOutput
	if msg := call(t, cs, ToolAddMapping, map[string]any{"keyword": "Pizza", "emoji": "🍕"}, &out); msg != "" {
		t.Fatalf("tool error: %s", msg)
	}
	if out.Replaced {
		t.Error("Replaced = true for a new mapping")
	}
	if mp, ok := kw.Lookup("pizza"); !ok || mp.Emoji != "🍕" {
		t.Errorf("Lookup(pizza) = %+v, %v", mp, ok)
	}

	call(t, cs, ToolAddMapping, map[string]any{"keyword": "pizza", "emoji": "🤤"}, &out)
	if !out.Replaced {
		t.Error("Replaced = false when overwriting")
	}

	if msg := call(t, cs, ToolAddMapping, map[string]any{"keyword": "nothing"}, nil); msg == "" {
		t.Error("expected error for an empty mapping")
	}
}

func TestSearchMedia(t *testing.T) {
	t.Parallel()
	mp := &mediamock.Provider{SearchFunc: func(q string, limit int) []types.MediaItem {
		return []types.MediaItem{{ID: q, Kind: types.MediaGIF}}
	}}
	cs := connect(t, New(keyword.New(), WithMediaProvider(mp)))

	var out MediaOutput
	if msg := call(t, cs, ToolSearchMedia, map[string]any{"query": "happy dance", "limit": 100}, &out); msg != "" {
		t.Fatalf("tool error: %s", msg)
	}
	if len(out.Items) != 1 || out.Items[0].ID != "happy dance" {
		t.Errorf("items = %+v", out.Items)
	}
	if calls := mp.Calls(); len(calls) != 1 || calls[0].Limit != maxMediaLimit {
		t.Errorf("search calls = %+v, want limit %d", calls, maxMediaLimit)
	}
}

func TestPreferenceStats(t *testing.T) {
	t.Parallel()
	prefs := preference.New()
	sc := preference.SelectionContext{Transcript: "nice"}
	_ = prefs.LogSelection(context.Background(), sc, types.Suggestion{Keyword: "fire", Emoji: "🔥"}, preference.SourceEmoji)

	cs := connect(t, New(keyword.New(), WithPreferences(prefs)))
	var out StatsOutput
	if msg := call(t, cs, ToolPreferenceStats, map[string]any{}, &out); msg != "" {
		t.Fatalf("tool error: %s", msg)
	}
	if out.TotalSelections != 1 || out.TopEmoji != "🔥" || len(out.FavoriteEmojis) != 1 {
		t.Errorf("stats = %+v", out)
	}
}
