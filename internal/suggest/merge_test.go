package suggest

import (
	"testing"
	"time"

	"github.com/MrWong99/emotive/internal/intensity"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/pkg/types"
)

func rule(keyword, emoji string, conf float64) types.Suggestion {
	return types.Suggestion{Keyword: keyword, Emoji: emoji, Confidence: conf, Source: types.SourceRule}
}

func TestMerge(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	humor := semantic.Match{Category: "casual.humor", Similarity: 0.8, Emoji: "🤣", MediaPatterns: []string{"laughing crying"}}
	weak := semantic.Match{Category: "emotional.love", Similarity: 0.4, Emoji: "❤️"}

	tests := []struct {
		name        string
		sem         []semantic.Match
		rules       []types.Suggestion
		wantKeys    []string
		wantSources []types.SuggestionSource
	}{
		{
			name:        "semantic above priority leads",
			sem:         []semantic.Match{humor},
			rules:       []types.Suggestion{rule("lol", "😂", 1)},
			wantKeys:    []string{"lol", "humor"},
			wantSources: []types.SuggestionSource{types.SourceRule, types.SourceSemantic},
		},
		{
			name:        "rule with seen emoji is dropped",
			sem:         []semantic.Match{humor},
			rules:       []types.Suggestion{rule("hilarious", "🤣", 1), rule("love", "❤️", 0.9)},
			wantKeys:    []string{"love", "humor"},
			wantSources: []types.SuggestionSource{types.SourceRule, types.SourceSemantic},
		},
		{
			name:        "weak semantic ignored when rules exist",
			sem:         []semantic.Match{weak},
			rules:       []types.Suggestion{rule("wow", "😮", 0.7)},
			wantKeys:    []string{"wow"},
			wantSources: []types.SuggestionSource{types.SourceRule},
		},
		{
			name:        "weak semantic is the fallback",
			sem:         []semantic.Match{weak},
			wantKeys:    []string{"love"},
			wantSources: []types.SuggestionSource{types.SourceSemanticLow},
		},
		{
			name:     "nothing in nothing out",
			wantKeys: nil,
		},
		{
			name: "truncated to three",
			rules: []types.Suggestion{
				rule("a", "1", 0.6), rule("b", "2", 0.9), rule("c", "3", 0.7), rule("d", "4", 0.8),
			},
			wantKeys:    []string{"b", "d", "c"},
			wantSources: []types.SuggestionSource{types.SourceRule, types.SourceRule, types.SourceRule},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Merge(tc.sem, tc.rules, 0.65, now)
			if len(got) != len(tc.wantKeys) {
				t.Fatalf("Merge returned %d suggestions (%v), want %d", len(got), got, len(tc.wantKeys))
			}
			for i, s := range got {
				if s.Keyword != tc.wantKeys[i] {
					t.Errorf("[%d].Keyword = %q, want %q", i, s.Keyword, tc.wantKeys[i])
				}
				if s.Source != tc.wantSources[i] {
					t.Errorf("[%d].Source = %q, want %q", i, s.Source, tc.wantSources[i])
				}
			}
		})
	}
}

func TestMerge_SemanticFields(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	got := Merge([]semantic.Match{{
		Category:      "casual.humor",
		Similarity:    0.9,
		Emoji:         "🤣",
		MediaPatterns: []string{"laughing crying", "lol dying"},
	}}, nil, 0.65, now)

	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(got))
	}
	s := got[0]
	if s.SearchQuery != "laughing crying" {
		t.Errorf("SearchQuery = %q, want first media pattern", s.SearchQuery)
	}
	if len(s.MediaPatterns) != 2 {
		t.Errorf("MediaPatterns = %v, want 2 entries", s.MediaPatterns)
	}
	if !s.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", s.Timestamp, now)
	}
}

func TestApplyIntensity_CopiesAndClamps(t *testing.T) {
	t.Parallel()
	in := []types.Suggestion{rule("lol", "😂", 0.9)}
	res := intensity.Detect("THIS IS ABSOLUTELY HILARIOUS!!!")
	out := ApplyIntensity(in, res)

	if in[0].IntensityLevel != "" {
		t.Error("ApplyIntensity mutated its input")
	}
	if out[0].IntensityLevel != string(res.Level) {
		t.Errorf("IntensityLevel = %q, want %q", out[0].IntensityLevel, res.Level)
	}
	if out[0].Confidence < 0 || out[0].Confidence > 1 {
		t.Errorf("Confidence = %v, want within [0, 1]", out[0].Confidence)
	}
}
