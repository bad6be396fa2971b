package suggest

import (
	"fmt"
	"time"
)

// DisplayMode selects what happens with the suggestions for a final
// transcript.
type DisplayMode string

const (
	// ModeAuto shows the top suggestion on the display sink without asking.
	ModeAuto DisplayMode = "auto"

	// ModeSuggest offers suggestions and media to the panel only.
	ModeSuggest DisplayMode = "suggest"

	// ModeBoth does both.
	ModeBoth DisplayMode = "both"
)

// ParseDisplayMode validates s.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch m := DisplayMode(s); m {
	case ModeAuto, ModeSuggest, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("suggest: invalid display mode %q", s)
	}
}

func (m DisplayMode) autoDisplays() bool { return m == ModeAuto || m == ModeBoth }
func (m DisplayMode) suggests() bool     { return m == ModeSuggest || m == ModeBoth }

const (
	minDisplayDuration = time.Second
	maxDisplayDuration = 10 * time.Second
)

// Config holds the orchestrator's runtime tunables. Matcher tunables such as
// cooldown and thresholds live on the matchers themselves.
type Config struct {
	DisplayMode DisplayMode

	// AutoDisplayDuration is how long an auto-displayed reaction stays up.
	// Clamped to [1s, 10s].
	AutoDisplayDuration time.Duration

	// PartialDebounce delays partial processing; each new partial restarts it.
	PartialDebounce time.Duration

	// SpeculativeFetchInterval is the minimum gap between speculative media
	// fetches started from partials.
	SpeculativeFetchInterval time.Duration

	// SemanticTimeout bounds how long a final waits for the semantic matcher.
	SemanticTimeout time.Duration

	// SemanticPriority is the similarity above which the top semantic match
	// leads the merged suggestions.
	SemanticPriority float64

	MaxMediaQueries int
	MaxMediaItems   int
	MediaPerQuery   int

	// TopicsLookback is the window of other-speaker speech mined for topics.
	TopicsLookback time.Duration

	// ProsodyWindow is how long a submitted prosody sample applies to
	// following finals.
	ProsodyWindow time.Duration
}

// DefaultConfig returns the built-in tunables.
func DefaultConfig() Config {
	return Config{
		DisplayMode:              ModeSuggest,
		AutoDisplayDuration:      3 * time.Second,
		PartialDebounce:          150 * time.Millisecond,
		SpeculativeFetchInterval: 500 * time.Millisecond,
		SemanticTimeout:          50 * time.Millisecond,
		SemanticPriority:         0.65,
		MaxMediaQueries:          2,
		MaxMediaItems:            6,
		MediaPerQuery:            3,
		TopicsLookback:           15 * time.Second,
		ProsodyWindow:            3 * time.Second,
	}
}

// normalized replaces invalid values with defaults and clamps the display
// duration.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if _, err := ParseDisplayMode(string(c.DisplayMode)); err != nil {
		c.DisplayMode = d.DisplayMode
	}
	if c.AutoDisplayDuration <= 0 {
		c.AutoDisplayDuration = d.AutoDisplayDuration
	}
	c.AutoDisplayDuration = min(max(c.AutoDisplayDuration, minDisplayDuration), maxDisplayDuration)
	if c.PartialDebounce < 0 {
		c.PartialDebounce = d.PartialDebounce
	}
	if c.SpeculativeFetchInterval < 0 {
		c.SpeculativeFetchInterval = d.SpeculativeFetchInterval
	}
	if c.SemanticTimeout <= 0 {
		c.SemanticTimeout = d.SemanticTimeout
	}
	if c.SemanticPriority <= 0 || c.SemanticPriority > 1 {
		c.SemanticPriority = d.SemanticPriority
	}
	if c.MaxMediaQueries <= 0 {
		c.MaxMediaQueries = d.MaxMediaQueries
	}
	if c.MaxMediaItems <= 0 {
		c.MaxMediaItems = d.MaxMediaItems
	}
	if c.MediaPerQuery <= 0 {
		c.MediaPerQuery = d.MediaPerQuery
	}
	if c.TopicsLookback <= 0 {
		c.TopicsLookback = d.TopicsLookback
	}
	if c.ProsodyWindow <= 0 {
		c.ProsodyWindow = d.ProsodyWindow
	}
	return c
}
