// Package predict anticipates the local user's likely reactions from what
// the other party is saying, so media for those reactions can be fetched
// before the user speaks.
package predict

import (
	"sort"
	"strings"
)

// Tunables of the scoring rule.
const (
	baseConfidence  = 0.4
	perMatch        = 0.15
	maxConfidence   = 0.9
	maxPredictions  = 5
	likelyThreshold = 0.5
)

// Pattern groups trigger phrases with the reaction categories they predict.
// Emoji is parallel to Categories; a missing entry falls back to Emoji[0].
type Pattern struct {
	Name       string
	Triggers   []string
	Categories []string
	Emoji      []string
}

// Prediction is a category the user is likely to react with.
type Prediction struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Emoji      string  `json:"emoji,omitempty"`

	// Source is the name of the pattern that produced the winning confidence.
	Source string `json:"source"`
}

// DefaultPatterns is the built-in pattern table.
var DefaultPatterns = []Pattern{
	{
		Name: "question",
		Triggers: []string{
			"what do you think", "don't you agree", "right?",
			"isn't it", "sound good?", "wouldn't you say",
			"do you agree", "makes sense?", "you know what i mean",
		},
		Categories: []string{"thinking", "agreement", "skeptical"},
		Emoji:      []string{"🤔", "👍", "🤨"},
	},
	{
		Name: "good_news",
		Triggers: []string{
			"got the job", "got promoted", "we won", "it worked",
			"great news", "finally", "i did it", "guess what",
			"amazing news", "incredible", "can't believe it worked",
		},
		Categories: []string{"excitement", "joy", "celebration", "congratulations"},
		Emoji:      []string{"🤯", "🥳", "🎉", "👏"},
	},
	{
		Name: "bad_news",
		Triggers: []string{
			"didn't work", "failed", "rejected", "lost",
			"broke up", "passed away", "got fired", "terrible news",
			"awful", "horrible", "disaster", "worst",
		},
		Categories: []string{"empathy", "sadness", "support"},
		Emoji:      []string{"🤗", "😢", "❤️"},
	},
	{
		Name: "humor",
		Triggers: []string{
			"kidding", "joking", "funny thing", "you'll laugh",
			"plot twist", "hilarious", "ridiculous", "absurd",
			"can you believe", "get this",
		},
		Categories: []string{"humor", "laughter", "amusement"},
		Emoji:      []string{"🤣", "😂"},
	},
	{
		Name: "opinion",
		Triggers: []string{
			"i think", "i believe", "honestly", "in my opinion",
			"clearly", "obviously", "definitely", "absolutely",
		},
		Categories: []string{"agreement", "thinking", "skeptical"},
		Emoji:      []string{"👍", "🤔", "🤨"},
	},
	{
		Name: "frustration",
		Triggers: []string{
			"so annoying", "can't believe", "ridiculous",
			"frustrating", "unbelievable", "drives me crazy",
			"hate when", "sick of", "fed up",
		},
		Categories: []string{"empathy", "frustration", "agreement"},
		Emoji:      []string{"🤗", "😤", "👍"},
	},
	{
		Name: "showing",
		Triggers: []string{
			"look at this", "check this out", "watch this",
			"look what i", "see this", "take a look",
		},
		Categories: []string{"impressed", "excitement", "approval"},
		Emoji:      []string{"🤩", "🤯", "👍"},
	},
	{
		Name: "awkward",
		Triggers: []string{
			"embarrassing", "awkward", "cringy", "so bad",
			"yikes", "oh no", "messed up",
		},
		Categories: []string{"cringe", "empathy"},
		Emoji:      []string{"😬", "🤗"},
	},
	{
		Name: "plans",
		Triggers: []string{
			"this weekend", "next week", "planning to",
			"going to", "excited about", "looking forward",
		},
		Categories: []string{"anticipation", "excitement"},
		Emoji:      []string{"🤞", "🤩"},
	},
	{
		Name: "cute",
		Triggers: []string{
			"so cute", "adorable", "precious", "baby",
			"puppy", "kitten", "aww",
		},
		Categories: []string{"love", "joy"},
		Emoji:      []string{"❤️", "🥰"},
	},
}

// Predictor is stateless and safe for concurrent use.
type Predictor struct {
	patterns []Pattern
}

// Option configures a [Predictor].
type Option func(*Predictor)

// WithPatterns replaces the built-in pattern table.
func WithPatterns(ps []Pattern) Option {
	return func(p *Predictor) { p.patterns = ps }
}

// New returns a Predictor using [DefaultPatterns].
func New(opts ...Option) *Predictor {
	p := &Predictor{patterns: DefaultPatterns}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Predict returns up to five predicted categories for text, most confident
// first. Each pattern with at least one trigger present contributes
// min(0.9, 0.4 + 0.15*hits) to each of its categories; a category reachable
// from several patterns keeps the highest contribution.
func (p *Predictor) Predict(text string) []Prediction {
	lower := strings.ToLower(text)
	var acc accumulator
	for _, pat := range p.patterns {
		hits := 0
		for _, trig := range pat.Triggers {
			if strings.Contains(lower, trig) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		conf := min(maxConfidence, baseConfidence+float64(hits)*perMatch)
		for i, cat := range pat.Categories {
			acc.offer(Prediction{Category: cat, Confidence: conf, Emoji: emojiAt(pat.Emoji, i), Source: pat.Name})
		}
	}
	return acc.top(maxPredictions)
}

// Top returns the single most confident prediction.
func (p *Predictor) Top(text string) (Prediction, bool) {
	ps := p.Predict(text)
	if len(ps) == 0 {
		return Prediction{}, false
	}
	return ps[0], true
}

// IsReactionLikely reports whether the top prediction reaches 0.5.
func (p *Predictor) IsReactionLikely(text string) bool {
	top, ok := p.Top(text)
	return ok && top.Confidence >= likelyThreshold
}

// Categories returns the predicted category names, most confident first.
func (p *Predictor) Categories(text string) []string {
	ps := p.Predict(text)
	out := make([]string, len(ps))
	for i, pr := range ps {
		out[i] = pr.Category
	}
	return out
}

// FromHistory predicts over several utterances, keeping each category's best
// prediction.
func (p *Predictor) FromHistory(texts []string) []Prediction {
	var acc accumulator
	for _, t := range texts {
		for _, pr := range p.Predict(t) {
			acc.offer(pr)
		}
	}
	return acc.top(maxPredictions)
}

// accumulator keeps the best prediction per category in first-seen order.
type accumulator struct {
	order []Prediction
	index map[string]int
}

func (a *accumulator) offer(pr Prediction) {
	if a.index == nil {
		a.index = make(map[string]int)
	}
	i, ok := a.index[pr.Category]
	if !ok {
		a.index[pr.Category] = len(a.order)
		a.order = append(a.order, pr)
		return
	}
	if a.order[i].Confidence < pr.Confidence {
		a.order[i] = pr
	}
}

func (a *accumulator) top(n int) []Prediction {
	out := append([]Prediction(nil), a.order...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func emojiAt(emoji []string, i int) string {
	switch {
	case i < len(emoji):
		return emoji[i]
	case len(emoji) > 0:
		return emoji[0]
	default:
		return ""
	}
}
