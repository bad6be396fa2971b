package taxonomy

import (
	"strings"
	"testing"
)

func TestDefault_Shape(t *testing.T) {
	t.Parallel()
	tax := Default()

	if got := tax.Contexts(); strings.Join(got, ",") != "professional,casual,emotional" {
		t.Errorf("Contexts() = %v", got)
	}
	if n := len(tax.All()); n != 31 {
		t.Errorf("len(All()) = %d, want 31", n)
	}
	for _, c := range tax.All() {
		if c.Key != c.Context+"."+c.Name {
			t.Errorf("key %q does not match %s.%s", c.Key, c.Context, c.Name)
		}
	}
}

func TestDefault_Lookup(t *testing.T) {
	t.Parallel()
	c, ok := Default().Lookup("casual.humor")
	if !ok {
		t.Fatal("casual.humor not found")
	}
	if c.Emoji != "🤣" {
		t.Errorf("Emoji = %q, want 🤣", c.Emoji)
	}
	if c.Anchors[0] != "that's hilarious" {
		t.Errorf("Anchors[0] = %q", c.Anchors[0])
	}
	if c.MediaPatterns[0] != "laughing crying" {
		t.Errorf("MediaPatterns[0] = %q", c.MediaPatterns[0])
	}

	if _, ok := Default().Lookup("casual.nope"); ok {
		t.Error("unknown key reported as found")
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	t.Parallel()
	c, _ := Default().Lookup("emotional.love")
	c.Anchors[0] = "mutated"
	again, _ := Default().Lookup("emotional.love")
	if again.Anchors[0] == "mutated" {
		t.Error("Lookup exposes internal slice")
	}
}

func TestAnchors_Flattened(t *testing.T) {
	t.Parallel()
	tax := Default()
	total := 0
	for _, c := range tax.All() {
		total += len(c.Anchors)
	}
	anchors := tax.Anchors()
	if len(anchors) != total {
		t.Fatalf("len(Anchors()) = %d, want %d", len(anchors), total)
	}
	if anchors[0].Key != "professional.agreement" || anchors[0].Phrase != "I agree" {
		t.Errorf("first anchor = %+v", anchors[0])
	}
}

func TestParse_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty",
			doc:     "contexts: []",
			wantErr: "no categories",
		},
		{
			name: "missing anchors",
			doc: `contexts:
  - name: casual
    categories:
      - name: humor
        emoji: "x"
        media_patterns: [lol]`,
			wantErr: "casual.humor: no anchors",
		},
		{
			name: "duplicate",
			doc: `contexts:
  - name: casual
    categories:
      - {name: humor, emoji: x, anchors: [a], media_patterns: [b]}
      - {name: humor, emoji: y, anchors: [c], media_patterns: [d]}`,
			wantErr: "duplicate",
		},
		{
			name: "dotted name",
			doc: `contexts:
  - name: a.b
    categories:
      - {name: humor, emoji: x, anchors: [a], media_patterns: [b]}`,
			wantErr: "invalid context name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestShortName(t *testing.T) {
	t.Parallel()
	if got := ShortName("casual.humor"); got != "humor" {
		t.Errorf("ShortName = %q", got)
	}
	if got := ShortName("plain"); got != "plain" {
		t.Errorf("ShortName = %q", got)
	}
}
