// Package types defines the shared types used across all emotive packages.
//
// These types form the lingua franca between providers, pipeline components,
// and the orchestrator. Each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Speaker identifies which side of a conversation produced a transcript.
type Speaker string

const (
	// SpeakerSelf is the local user whose reactions are being suggested.
	SpeakerSelf Speaker = "self"

	// SpeakerOther is the remote party. Their speech is used only for prediction.
	SpeakerOther Speaker = "other"
)

// IsValid reports whether s is a known speaker.
func (s Speaker) IsValid() bool {
	return s == SpeakerSelf || s == SpeakerOther
}

// TranscriptEvent is a single speech-to-text result produced by a transcript
// source. Events are immutable once created.
type TranscriptEvent struct {
	// Speaker is who said it.
	Speaker Speaker `json:"speaker"`

	// Text is the transcribed speech content.
	Text string `json:"text"`

	// Timestamp is when the engine produced the event.
	Timestamp time.Time `json:"timestamp"`

	// IsPartial marks an interim result that may still change.
	IsPartial bool `json:"is_partial"`
}

// SuggestionSource discriminates where a [Suggestion] came from.
type SuggestionSource string

const (
	// SourceRule marks a suggestion from the lexical keyword table.
	SourceRule SuggestionSource = "rule"

	// SourceSemantic marks a high-confidence embedding match.
	SourceSemantic SuggestionSource = "semantic"

	// SourceSemanticLow marks a sub-threshold embedding match used as a fallback.
	SourceSemanticLow SuggestionSource = "semantic-low"

	// SourcePredictive marks a suggestion derived from the other speaker.
	// Predictive suggestions are never emitted to listeners.
	SourcePredictive SuggestionSource = "predictive"
)

// Suggestion is the unified output unit of the pipeline.
type Suggestion struct {
	// Keyword is the matched keyword or the category name for semantic matches.
	Keyword string `json:"keyword"`

	// Emoji to display, if any.
	Emoji string `json:"emoji,omitempty"`

	// Text is a short text reaction, if any.
	Text string `json:"text,omitempty"`

	// Style names the text reaction style.
	Style string `json:"style,omitempty"`

	// SearchQuery is the preferred media search query for this suggestion.
	SearchQuery string `json:"search_query,omitempty"`

	// MediaPatterns are alternative media query templates (semantic matches only).
	MediaPatterns []string `json:"media_patterns,omitempty"`

	// Confidence is always within [0, 1].
	Confidence float64 `json:"confidence"`

	// Source identifies the producing matcher.
	Source SuggestionSource `json:"source"`

	// IntensityLevel is the detected expression strength ("low", "neutral", ...).
	IntensityLevel string `json:"intensity_level,omitempty"`

	// PreferenceBoost is the signed adjustment applied by personalisation.
	PreferenceBoost float64 `json:"preference_boost,omitempty"`

	// Timestamp is when the suggestion was produced.
	Timestamp time.Time `json:"timestamp"`
}

// MediaKind enumerates media search result kinds.
type MediaKind string

const (
	MediaGIF     MediaKind = "gif"
	MediaSticker MediaKind = "sticker"
)

// MediaItem is a single result returned by a media search provider.
type MediaItem struct {
	// ID uniquely identifies the item within its provider. Results are
	// de-duplicated by ID.
	ID string `json:"id"`

	Title string    `json:"title,omitempty"`
	Kind  MediaKind `json:"kind,omitempty"`

	// URL is the preferred content URL (mp4 for GIFs, webp for stickers when available).
	URL string `json:"url,omitempty"`

	// MimeType of the content at URL.
	MimeType string `json:"mime_type,omitempty"`

	// Tags are provider-supplied style tags.
	Tags []string `json:"tags,omitempty"`

	// AnalyticsURL is pinged when the user picks this item. Optional.
	AnalyticsURL string `json:"analytics_url,omitempty"`
}

// ProsodyFeatures is one pre-computed acoustic sample. Values at or below zero
// are treated as missing.
type ProsodyFeatures struct {
	// Pitch in Hz.
	Pitch float64 `json:"pitch"`

	// Volume as RMS level in [0, 1].
	Volume float64 `json:"volume"`

	// Speed in syllables per second.
	Speed float64 `json:"speed"`

	// Variability is pitch variability in [0, 1].
	Variability float64 `json:"variability"`
}

// Clamp01 limits v to the closed unit interval.
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
