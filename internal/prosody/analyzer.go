// Package prosody turns pre-computed acoustic features into emotion hints.
//
// An [Analyzer] normalises each sample against a per-speaker baseline,
// buckets pitch, volume, speed and variability into ordinal levels and scores
// them against a fixed table of emotion signatures. The baseline starts from
// typical adult values and is calibrated once from the median of the first
// ten observed samples.
package prosody

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/MrWong99/emotive/pkg/types"
)

const (
	historySize        = 20
	calibrationWindow  = 10
	minEmotionScore    = 0.6
	defaultVariability = 0.5

	directBoost        = 0.15
	relatedBoost       = 0.08
	contradictionBoost = -0.05
)

// Baseline is the reference a speaker's features are compared against.
type Baseline struct {
	// Pitch in Hz.
	Pitch float64 `json:"pitch"`
	// Volume as RMS level.
	Volume float64 `json:"volume"`
	// Speed in syllables per second.
	Speed      float64 `json:"speed"`
	Calibrated bool    `json:"calibrated"`
}

// DefaultBaseline is used until calibration completes.
var DefaultBaseline = Baseline{Pitch: 150, Volume: 0.5, Speed: 3.5}

// Levels are the bucketed dimensions of one sample.
type Levels struct {
	Pitch       Level `json:"pitch"`
	Volume      Level `json:"volume"`
	Speed       Level `json:"speed"`
	Variability Level `json:"variability"`
}

// Emotion is one signature that scored at least 0.6.
type Emotion struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the result of [Analyzer.Analyze].
type Analysis struct {
	Emotions   []Emotion             `json:"emotions"`
	Levels     Levels                `json:"levels"`
	Normalized types.ProsodyFeatures `json:"normalized"`
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	mu       sync.Mutex
	baseline Baseline
	history  []types.ProsodyFeatures
}

// New returns an uncalibrated Analyzer.
func New() *Analyzer {
	return &Analyzer{baseline: DefaultBaseline}
}

// Analyze scores f against every emotion signature and records it for
// baseline calibration. Pitch, volume and speed at or below zero are treated
// as matching the baseline; variability at or below zero defaults to 0.5.
func (a *Analyzer) Analyze(f types.ProsodyFeatures) Analysis {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := types.ProsodyFeatures{
		Pitch:       ratio(f.Pitch, a.baseline.Pitch),
		Volume:      ratio(f.Volume, a.baseline.Volume),
		Speed:       ratio(f.Speed, a.baseline.Speed),
		Variability: f.Variability,
	}
	if n.Variability <= 0 {
		n.Variability = defaultVariability
	}
	lv := Levels{
		Pitch:       bucket(n.Pitch, pitchScale, 1.3, 1.1, 0.9, 0.7),
		Volume:      bucket(n.Volume, volumeScale, 1.4, 1.15, 0.85, 0.6),
		Speed:       bucket(n.Speed, speedScale, 1.3, 1.1, 0.9, 0.7),
		Variability: variabilityLevel(n.Variability),
	}

	a.recordLocked(f)
	return Analysis{Emotions: score(lv), Levels: lv, Normalized: n}
}

// Hints returns the emotion names detected in f, strongest first.
func (a *Analyzer) Hints(f types.ProsodyFeatures) []string {
	res := a.Analyze(f)
	out := make([]string, len(res.Emotions))
	for i, e := range res.Emotions {
		out[i] = e.Emotion
	}
	return out
}

// AdjustSuggestions returns copies of suggestions with confidence nudged by
// the detected emotions: +0.15 when the keyword is itself a detected
// emotion, +0.08 when it shares an emotion group with one, -0.05 when a
// detected emotion contradicts it. Order is preserved.
func AdjustSuggestions(suggestions []types.Suggestion, emotions []string) []types.Suggestion {
	if len(suggestions) == 0 || len(emotions) == 0 {
		return suggestions
	}
	out := make([]types.Suggestion, len(suggestions))
	for i, s := range suggestions {
		kw := strings.ToLower(s.Keyword)
		var boost float64
		switch {
		case slices.Contains(emotions, kw):
			boost = directBoost
		case related(kw, emotions):
			boost = relatedBoost
		case contradicted(kw, emotions):
			boost = contradictionBoost
		}
		s.Confidence = types.Clamp01(s.Confidence + boost)
		out[i] = s
	}
	return out
}

// SetBaseline overrides the baseline and marks it calibrated. Non-positive
// fields keep their current value.
func (a *Analyzer) SetBaseline(b Baseline) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b.Pitch > 0 {
		a.baseline.Pitch = b.Pitch
	}
	if b.Volume > 0 {
		a.baseline.Volume = b.Volume
	}
	if b.Speed > 0 {
		a.baseline.Speed = b.Speed
	}
	a.baseline.Calibrated = true
}

// Baseline returns the current baseline.
func (a *Analyzer) Baseline() Baseline {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseline
}

// ResetCalibration restores the default baseline and drops the history.
func (a *Analyzer) ResetCalibration() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseline = DefaultBaseline
	a.history = nil
}

func (a *Analyzer) recordLocked(f types.ProsodyFeatures) {
	a.history = append(a.history, f)
	if len(a.history) > historySize {
		a.history = a.history[len(a.history)-historySize:]
	}
	if len(a.history) >= calibrationWindow && !a.baseline.Calibrated {
		a.calibrateLocked()
	}
}

func (a *Analyzer) calibrateLocked() {
	pick := func(get func(types.ProsodyFeatures) float64) []float64 {
		var vs []float64
		for _, f := range a.history {
			if v := get(f); v > 0 {
				vs = append(vs, v)
			}
		}
		return vs
	}
	if m, ok := median(pick(func(f types.ProsodyFeatures) float64 { return f.Pitch })); ok {
		a.baseline.Pitch = m
	}
	if m, ok := median(pick(func(f types.ProsodyFeatures) float64 { return f.Volume })); ok {
		a.baseline.Volume = m
	}
	if m, ok := median(pick(func(f types.ProsodyFeatures) float64 { return f.Speed })); ok {
		a.baseline.Speed = m
	}
	a.baseline.Calibrated = true
}

// median returns the upper median.
func median(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	sort.Float64s(vs)
	return vs[len(vs)/2], true
}

func ratio(v, base float64) float64 {
	if v <= 0 || base <= 0 {
		return 1
	}
	return v / base
}

// bucket maps r onto a five-level scale using descending thresholds
// (high, medium-high, medium-low, low).
func bucket(r float64, scale []Level, hi, midHi, midLo, lo float64) Level {
	switch {
	case r > hi:
		return scale[4]
	case r > midHi:
		return scale[3]
	case r < lo:
		return scale[0]
	case r < midLo:
		return scale[1]
	default:
		return scale[2]
	}
}

func variabilityLevel(v float64) Level {
	switch {
	case v > 0.7:
		return High
	case v > 0.5:
		return Medium
	case v < 0.2:
		return VeryLow
	case v < 0.35:
		return Low
	default:
		return Medium
	}
}

func score(lv Levels) []Emotion {
	var out []Emotion
	for _, sig := range Signatures {
		s := closeness(lv.Pitch, sig.Pitch, pitchScale) +
			closeness(lv.Volume, sig.Volume, volumeScale) +
			closeness(lv.Speed, sig.Speed, speedScale) +
			closeness(lv.Variability, sig.Variability, variabilityScale)
		if c := s / 4; c >= minEmotionScore {
			out = append(out, Emotion{Emotion: sig.Emotion, Confidence: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// closeness is 1 for an exact level, 0.5 for an adjacent one, else 0.
func closeness(actual, expected Level, scale []Level) float64 {
	if actual == expected {
		return 1
	}
	ai, ei := slices.Index(scale, actual), slices.Index(scale, expected)
	if ai < 0 || ei < 0 {
		return 0
	}
	if d := ai - ei; d == 1 || d == -1 {
		return 0.5
	}
	return 0
}

func related(emotion string, detected []string) bool {
	for _, g := range emotionGroups {
		if slices.Contains(g, emotion) {
			return slices.ContainsFunc(detected, func(d string) bool { return slices.Contains(g, d) })
		}
	}
	return false
}

func contradicted(emotion string, detected []string) bool {
	against, ok := contradictions[emotion]
	if !ok {
		return false
	}
	return slices.ContainsFunc(detected, func(d string) bool { return slices.Contains(against, d) })
}
