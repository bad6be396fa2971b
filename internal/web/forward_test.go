package web

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/pkg/types"
)

func TestHub_ForwardsMappingChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.hub.Forward(ctx, f.keywords, f.prefs)

	ts := httptest.NewServer(f.srv)
	t.Cleanup(ts.Close)
	conn := dial(t, ts.URL)
	readUntil(t, conn, MsgHello)

	if err := f.keywords.AddCustomMapping(ctx, "yeet", keyword.Mapping{Emoji: "🚀"}); err != nil {
		t.Fatal(err)
	}
	env := readUntil(t, conn, MsgMappings)
	var got MappingChanged
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Keyword != "yeet" || got.Mapping == nil || got.Mapping.Emoji != "🚀" {
		t.Errorf("payload = %+v, want yeet -> 🚀", got)
	}

	if err := f.keywords.RemoveMapping(ctx, "yeet"); err != nil {
		t.Fatal(err)
	}
	env = readUntil(t, conn, MsgMappings)
	got = MappingChanged{}
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Removed || got.Mapping != nil {
		t.Errorf("payload = %+v, want a removal without mapping", got)
	}
}

func TestHub_ForwardsPreferenceChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.hub.Forward(ctx, nil, f.prefs)

	ts := httptest.NewServer(f.srv)
	t.Cleanup(ts.Close)
	conn := dial(t, ts.URL)
	readUntil(t, conn, MsgHello)

	sel := types.Suggestion{Keyword: "lol", Emoji: "😂", Confidence: 0.9}
	sc := preference.SelectionContext{Suggestions: []types.Suggestion{sel}}
	if err := f.prefs.LogSelection(ctx, sc, sel, preference.SourceEmoji); err != nil {
		t.Fatal(err)
	}
	env := readUntil(t, conn, MsgPreferences)
	var got PreferencesChanged
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Emoji != "😂" || got.Source != preference.SourceEmoji {
		t.Errorf("payload = %+v, want emoji selection", got)
	}
	if got.Stats.TotalSelections != 1 {
		t.Errorf("Stats.TotalSelections = %d, want 1", got.Stats.TotalSelections)
	}
}
