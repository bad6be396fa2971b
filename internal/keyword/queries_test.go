package keyword

import (
	"reflect"
	"testing"
)

func constRand(v float64) Option {
	return WithRand(func() float64 { return v })
}

func TestMediaQueries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		rnd        float64
		transcript string
		hint       QueryHint
		want       []string
	}{
		{
			name:       "patterns key phrase and emoji",
			rnd:        0.99,
			transcript: "That's hilarious, I love it",
			hint: QueryHint{
				MediaPatterns: []string{"laughing hysterically", "cant stop laughing"},
				Emoji:         "😂",
				Keyword:       "humor",
			},
			want: []string{"cant stop laughing", "thats hilarious reaction", "laughing tears gif"},
		},
		{
			name:       "pattern modifier and trending prefix",
			rnd:        0,
			transcript: "ok",
			hint: QueryHint{
				MediaPatterns: []string{"nodding yes"},
				Keyword:       "agreement",
			},
			want: []string{"nodding yes meme", "viral agreement gif", "agreement reaction"},
		},
		{
			name:       "high intensity emoji",
			rnd:        0.99,
			transcript: "",
			hint:       QueryHint{Emoji: "🤩", IntensityLevel: "high"},
			want:       []string{"star eyes excited extreme"},
		},
		{
			name:       "keyword with context variation",
			rnd:        0.99,
			transcript: "ok",
			hint:       QueryHint{Keyword: "agreement"},
			want:       []string{"agreement reaction", "so true"},
		},
		{
			name:       "fallback to short words",
			rnd:        0.99,
			transcript: "is it so",
			want:       []string{"is it so reaction"},
		},
		{
			name:       "nothing usable",
			rnd:        0.99,
			transcript: "a ?",
			want:       []string{"reaction gif"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := New(constRand(tt.rnd))
			got := m.MediaQueries(tt.transcript, tt.hint)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MediaQueries = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaQueries_NeverMoreThanThree(t *testing.T) {
	t.Parallel()
	m := New(constRand(0))
	got := m.MediaQueries("amazing concert tonight everyone", QueryHint{
		MediaPatterns:  []string{"mind blown"},
		Emoji:          "🔥",
		Keyword:        "excitement",
		IntensityLevel: "elevated",
	})
	if len(got) != 3 {
		t.Fatalf("len = %d (%q), want 3", len(got), got)
	}
	want := []string{"mind blown meme", "amazing concert reaction", "fire lit extreme"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestKeyPhrase(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"I really think this is great", "think great"},
		{"the a an", ""},
		{"Pizza!!! tonight, yes", "pizza tonight"},
	}
	for _, tt := range tests {
		if got := keyPhrase(tt.in); got != tt.want {
			t.Errorf("keyPhrase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDedupeQueries(t *testing.T) {
	t.Parallel()
	got := DedupeQueries([]string{"a", " ", "b", "a", "c", "d"}, 3)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEmojiName(t *testing.T) {
	t.Parallel()
	if got := EmojiName("🤔"); got != "thinking hmm" {
		t.Errorf("EmojiName(🤔) = %q", got)
	}
	if got := EmojiName("🦄"); got != "" {
		t.Errorf("EmojiName(unknown) = %q, want empty", got)
	}
}
