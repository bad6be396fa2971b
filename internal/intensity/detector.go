// Package intensity scores how strongly a transcript is expressed, so that
// "I'm happy" and "I'M SO INCREDIBLY HAPPY!!!" rank differently.
package intensity

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/emotive/pkg/types"
)

// Level buckets an intensity score.
type Level string

const (
	Low      Level = "low"
	Neutral  Level = "neutral"
	Elevated Level = "elevated"
	High     Level = "high"
)

// Description returns a human-readable description of the level.
func (l Level) Description() string {
	switch l {
	case Low:
		return "mild/understated"
	case Elevated:
		return "strong"
	case High:
		return "very strong/emphatic"
	default:
		return "normal"
	}
}

// Weights.
const (
	neutralScore     = 0.5
	intensifierBoost = 0.08
	diminisherDrop   = 0.10
	emphaticBoost    = 0.12
	strongWordBoost  = 0.1
	capsHighBoost    = 0.2
	capsMidBoost     = 0.1
	punctuationBoost = 0.15
	elongationBoost  = 0.1
	confidenceScale  = 0.3
)

var (
	intensifiers = []string{
		"so", "very", "really", "incredibly", "extremely", "absolutely",
		"totally", "completely", "definitely", "seriously", "super",
		"literally", "genuinely", "truly", "insanely", "ridiculously",
		"unbelievably", "massively", "hugely", "enormously",
	}
	diminishers = []string{
		"kinda", "kind of", "sort of", "a bit", "slightly", "somewhat",
		"maybe", "possibly", "a little", "not that", "not very",
		"barely", "hardly", "mildly", "partially",
	}
	emphatics = []string{
		"!", "!!", "!!!", "omg", "oh my god", "wow", "holy",
		"damn", "dude", "bro", "whoa", "jesus", "yooo",
	}
	strongWords = []string{
		"love", "hate", "amazing", "terrible", "incredible", "awful",
		"fantastic", "horrible", "perfect", "worst", "best", "obsessed",
		"dying", "screaming", "crying", "losing my mind",
	}

	repeatedPunctuation = regexp.MustCompile(`[!?]{2,}`)
)

// Result is the outcome of [Detect].
type Result struct {
	Score float64 `json:"score"`
	Level Level   `json:"level"`

	// Factors names every rule that moved the score, e.g. "intensifier:so".
	Factors []string `json:"factors,omitempty"`
}

// Adjust rescales a base confidence by (score-0.5)*0.3, at most +-0.15,
// clamped to [0, 1].
func (r Result) Adjust(confidence float64) float64 {
	return types.Clamp01(confidence + (r.Score-neutralScore)*confidenceScale)
}

// IsElevated reports whether the level is elevated or high.
func (r Result) IsElevated() bool { return r.Level == Elevated || r.Level == High }

// IsReduced reports whether the level is low.
func (r Result) IsReduced() bool { return r.Level == Low }

// Detect scores text. Word lists match as plain substrings of the
// lower-cased text.
func Detect(text string) Result {
	lower := strings.ToLower(text)
	score := neutralScore
	var factors []string

	for _, w := range intensifiers {
		if strings.Contains(lower, w) {
			score += intensifierBoost
			factors = append(factors, "intensifier:"+w)
		}
	}
	for _, w := range diminishers {
		if strings.Contains(lower, w) {
			score -= diminisherDrop
			factors = append(factors, "diminisher:"+w)
		}
	}
	for _, w := range emphatics {
		if strings.Contains(lower, w) {
			score += emphaticBoost
			factors = append(factors, "emphatic:"+w)
		}
	}
	for _, w := range strongWords {
		if strings.Contains(lower, w) {
			score += strongWordBoost
			factors = append(factors, "strong:"+w)
		}
	}

	if utf8.RuneCountInString(text) > 5 {
		switch caps := capsRatio(text); {
		case caps > 0.5:
			score += capsHighBoost
			factors = append(factors, "caps")
		case caps > 0.3:
			score += capsMidBoost
			factors = append(factors, "caps")
		}
	}
	if repeatedPunctuation.MatchString(text) {
		score += punctuationBoost
		factors = append(factors, "punctuation")
	}
	if hasElongation(lower) {
		score += elongationBoost
		factors = append(factors, "elongation")
	}

	score = types.Clamp01(score)
	return Result{Score: score, Level: levelFor(score), Factors: factors}
}

func levelFor(score float64) Level {
	switch {
	case score < 0.35:
		return Low
	case score < 0.55:
		return Neutral
	case score < 0.75:
		return Elevated
	default:
		return High
	}
}

// capsRatio is the share of upper-case letters among ASCII letters.
func capsRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// hasElongation reports whether any character repeats three or more times
// in a row ("soooo", "yesss").
func hasElongation(s string) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
			continue
		}
		prev, run = r, 1
	}
	return false
}
