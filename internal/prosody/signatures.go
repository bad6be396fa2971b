package prosody

// Level is an ordinal bucket for one prosodic dimension.
type Level string

const (
	VeryLow    Level = "very-low"
	Low        Level = "low"
	MediumLow  Level = "medium-low"
	Medium     Level = "medium"
	MediumHigh Level = "medium-high"
	High       Level = "high"

	Slow       Level = "slow"
	MediumSlow Level = "medium-slow"
	MediumFast Level = "medium-fast"
	Fast       Level = "fast"
)

// Ordinal scales per dimension, lowest first. Two levels are adjacent when
// their positions on the dimension's scale differ by one.
var (
	pitchScale       = []Level{Low, MediumLow, Medium, MediumHigh, High}
	volumeScale      = pitchScale
	speedScale       = []Level{Slow, MediumSlow, Medium, MediumFast, Fast}
	variabilityScale = []Level{VeryLow, Low, Medium, High}
)

// Signature is the expected prosodic profile of one emotion.
type Signature struct {
	Emotion     string
	Pitch       Level
	Volume      Level
	Speed       Level
	Variability Level
	Description string
}

// Signatures is the fixed emotion table, in scoring order.
var Signatures = []Signature{
	{"excitement", High, High, Fast, High, "Fast, loud, high-pitched, variable"},
	{"joy", High, MediumHigh, MediumFast, Medium, "Elevated pitch, moderate speed"},
	{"sadness", Low, Low, Slow, Low, "Slow, quiet, low-pitched, flat"},
	{"anger", High, High, Fast, High, "Loud, fast, high-pitched, intense"},
	{"frustration", MediumHigh, MediumHigh, Fast, Medium, "Elevated pitch, faster speech"},
	{"calm", Medium, Medium, Slow, Low, "Even, measured, steady"},
	{"nervousness", High, Medium, Fast, High, "Fast, high-pitched, variable"},
	{"confidence", Medium, MediumHigh, Medium, Low, "Clear, steady, projected"},
	{"surprise", High, MediumHigh, Fast, High, "Sudden pitch jump, gasping"},
	{"boredom", Low, Low, Slow, VeryLow, "Monotone, slow, quiet"},
	{"empathy", Medium, MediumLow, Slow, Medium, "Soft, gentle, measured"},
	{"enthusiasm", High, High, Fast, High, "Energetic, loud, fast-paced"},
}

// emotionGroups is consulted in order; the first group containing a
// suggestion's emotion decides relatedness.
var emotionGroups = [][]string{
	{"joy", "excitement", "enthusiasm", "confidence", "pride"},
	{"sadness", "frustration", "anger", "disappointment"},
	{"calm", "thinking", "curiosity"},
	{"excitement", "anger", "surprise", "enthusiasm"},
}

var contradictions = map[string][]string{
	"joy":        {"sadness", "anger", "frustration"},
	"sadness":    {"joy", "excitement", "enthusiasm"},
	"excitement": {"boredom", "sadness", "calm"},
	"calm":       {"anger", "excitement", "nervousness"},
	"confidence": {"nervousness"},
}
