package keyword

import (
	"strings"
	"unicode"
)

// synonyms are applied in order as plain substring replacements. Contractions
// map to "" and are effectively stripped.
var synonyms = []struct{ from, to string }{
	{"laughing", "laugh"},
	{"crying", "sad"},
	{"loving", "love"},
	{"hating", "hate"},
	{"questioning", "question"},
	{"celebrating", "celebrate"},
	{"waving", "wave"},
	{"clapping", "clap"},
	{"thinking about", "thinking"},
	{"that's", ""},
	{"it's", ""},
	{"i'm", ""},
	{"you're", ""},
}

// Normalize lower-cases text, applies the synonym table, replaces punctuation
// other than apostrophes with spaces and collapses whitespace.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, syn := range synonyms {
		s = strings.ReplaceAll(s, syn.from, syn.to)
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// words lower-cases text, drops everything but letters, digits, underscores
// and whitespace, and splits on whitespace.
func words(text string) []string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(text))
	return strings.Fields(s)
}
