package keyword

import (
	"strings"
)

// QueryHint carries the suggestion fields that steer media query generation.
type QueryHint struct {
	MediaPatterns  []string
	Emoji          string
	Keyword        string
	SearchQuery    string
	IntensityLevel string
}

const maxQueries = 3

var queryModifiers = []string{"meme", "funny", "reaction", "mood", "relatable", "cute", "iconic", "perfect"}

var trendingPrefixes = []string{"viral", "iconic", "classic", "best"}

var keyPhraseStopWords = toSet(strings.Fields(`i me my we our you your the a an is are was were
	that this it to and of in for on with at by be have has had do does did will would could
	should may might must shall so just very really like um uh`))

var emojiNames = map[string]string{
	"👍": "thumbs up", "👎": "thumbs down", "👏": "applause clapping", "👌": "ok perfect",
	"👋": "wave hello", "😊": "happy smile", "😂": "laughing tears", "🤣": "rolling laughing",
	"🤩": "star eyes excited", "🥳": "party celebration", "🥰": "love hearts", "😢": "crying sad",
	"😭": "crying loudly", "😠": "angry", "😡": "rage angry", "😤": "frustrated huffing",
	"😒": "unamused bored", "😮": "surprised wow", "😲": "astonished", "😱": "screaming shocked",
	"😯": "hushed surprised", "😕": "confused", "🤔": "thinking hmm", "🤯": "mind blown exploding",
	"🙄": "eye roll", "😬": "grimace awkward", "🤨": "skeptical raised eyebrow", "🤗": "hugging",
	"🤷": "shrug", "😮‍💨": "exhale relief", "❤️": "heart love", "🔥": "fire lit",
	"🎉": "party celebration", "⭐": "star", "💡": "lightbulb idea", "📝": "writing note",
	"💬": "speech bubble", "🚀": "rocket", "💪": "strong muscle", "🤞": "fingers crossed",
	"✅": "check yes", "❌": "x no", "🛑": "stop sign", "🟢": "green circle go",
	"❓": "question", "🎯": "bullseye target", "🙏": "prayer thank you", "🍻": "cheers drinks",
	"✋": "raised hand stop", "💯": "hundred percent",
}

var contextVariations = map[string][]string{
	"agreement":   {"nodding yes", "preach", "exactly right", "so true"},
	"humor":       {"dying laughing", "lmao reaction", "can't breathe laughing", "hilarious face"},
	"excitement":  {"freaking out excited", "losing it happy", "jumping joy", "so hyped"},
	"empathy":     {"sending hugs", "there there", "comfort pat", "feel better"},
	"thinking":    {"brain loading", "processing gif", "deep thought", "thinking hard"},
	"frustration": {"screaming internally", "stress reaction", "annoyed face", "over it"},
	"joy":         {"happy tears", "so happy dance", "pure joy", "celebrating victory"},
	"sadness":     {"crying sad", "heartbroken", "disappointed gif", "feeling blue"},
	"pride":       {"mic drop", "boss moment", "flex gif", "winning reaction"},
	"nostalgia":   {"memories feels", "throwback vibes", "miss it", "back in day"},
}

// EmojiName returns a searchable description of emoji, or "" when unknown.
func EmojiName(emoji string) string {
	return emojiNames[emoji]
}

// MediaQueries builds up to three distinct media search queries for a
// transcript. Template patterns, the transcript's key phrase, the emoji
// description and the keyword each contribute one query, with some random
// variety so repeated reactions do not always return the same media. The
// result is never empty.
func (m *Matcher) MediaQueries(transcript string, hint QueryHint) []string {
	var queries []string

	if n := len(hint.MediaPatterns); n > 0 {
		q := hint.MediaPatterns[m.pick(n)]
		if m.roll() < 0.3 {
			q += " " + queryModifiers[m.pick(len(queryModifiers))]
		}
		queries = append(queries, q)
	}

	if phrase := keyPhrase(transcript); phrase != "" {
		queries = append(queries, phrase+" reaction")
	}

	if hint.Emoji != "" {
		if name := emojiNames[hint.Emoji]; name != "" {
			if hint.IntensityLevel == "high" || hint.IntensityLevel == "elevated" {
				queries = append(queries, name+" extreme")
			} else {
				queries = append(queries, name+" gif")
			}
		}
	}

	if hint.Keyword != "" && m.roll() < 0.2 {
		queries = append(queries, trendingPrefixes[m.pick(len(trendingPrefixes))]+" "+hint.Keyword+" gif")
	}

	if hint.Keyword != "" && len(queries) < maxQueries {
		queries = append(queries, hint.Keyword+" reaction")
	}

	if len(queries) < maxQueries {
		if vs := contextVariations[hint.Keyword]; len(vs) > 0 {
			queries = append(queries, vs[m.pick(len(vs))])
		}
	}

	if len(queries) == 0 {
		var picked []string
		for _, w := range words(transcript) {
			if len([]rune(w)) > 1 {
				picked = append(picked, w)
			}
			if len(picked) == 3 {
				break
			}
		}
		if len(picked) > 0 {
			queries = append(queries, strings.Join(picked, " ")+" reaction")
		} else {
			queries = append(queries, "reaction gif")
		}
	}

	return dedupeCap(queries, maxQueries)
}

// keyPhrase returns the first two significant words of text.
func keyPhrase(text string) string {
	var picked []string
	for _, w := range words(text) {
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, stop := keyPhraseStopWords[w]; stop {
			continue
		}
		picked = append(picked, w)
		if len(picked) == 2 {
			break
		}
	}
	return strings.Join(picked, " ")
}

func (m *Matcher) roll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rnd()
}

func (m *Matcher) pick(n int) int {
	i := int(m.roll() * float64(n))
	if i >= n {
		i = n - 1
	}
	return max(0, i)
}

func dedupeCap(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, min(len(in), limit))
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

// DedupeQueries removes blank and repeated queries, keeping at most limit.
func DedupeQueries(in []string, limit int) []string {
	return dedupeCap(in, limit)
}

func toSet(ws []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		s[w] = struct{}{}
	}
	return s
}
