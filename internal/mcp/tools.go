package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/emotive/internal/intensity"
	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/predict"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/internal/suggest"
	"github.com/MrWong99/emotive/pkg/types"
)

var errEmptyText = errors.New("text must not be empty")

// ── suggest_reactions ────────────────────────────────────────────────────────

// TextInput is the argument of the text analysis tools.
type TextInput struct {
	Text string `json:"text" jsonschema:"the sentence to react to"`
}

// SuggestOutput is the result of suggest_reactions.
type SuggestOutput struct {
	Suggestions []types.Suggestion `json:"suggestions"`
	Intensity   intensity.Result   `json:"intensity"`

	// SemanticUsed is false when no embedding model is loaded or it timed out.
	SemanticUsed bool `json:"semantic_used"`
}

func (s *Server) suggestReactions(ctx context.Context, _ *mcpsdk.CallToolRequest, in TextInput) (*mcpsdk.CallToolResult, SuggestOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, SuggestOutput{}, errEmptyText
	}

	rules := s.keywords.Preview(text)
	sem, semUsed := s.semanticMatches(ctx, text)

	merged := suggest.Merge(sem, rules, s.semanticPriority, time.Now())
	level := intensity.Detect(text)
	merged = suggest.ApplyIntensity(merged, level)
	if s.prefs != nil {
		merged = s.prefs.AdjustRanking(merged)
	}
	if merged == nil {
		merged = []types.Suggestion{}
	}
	return nil, SuggestOutput{Suggestions: merged, Intensity: level, SemanticUsed: semUsed}, nil
}

// semanticMatches returns nothing while the matcher is not loaded. Errors
// and timeouts degrade to rules only.
func (s *Server) semanticMatches(ctx context.Context, text string) ([]semantic.Match, bool) {
	if s.semantic == nil || !s.semantic.IsLoaded() {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.semanticTimeout)
	defer cancel()
	matches, err := s.semantic.Match(ctx, text, -1)
	if err != nil {
		return nil, false
	}
	return matches, true
}

// ── predict_reactions ────────────────────────────────────────────────────────

// PredictOutput is the result of predict_reactions.
type PredictOutput struct {
	Predictions []predict.Prediction `json:"predictions"`
	Likely      bool                 `json:"reaction_likely"`
}

func (s *Server) predictReactions(_ context.Context, _ *mcpsdk.CallToolRequest, in TextInput) (*mcpsdk.CallToolResult, PredictOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, PredictOutput{}, errEmptyText
	}
	preds := s.predictor.Predict(in.Text)
	if preds == nil {
		preds = []predict.Prediction{}
	}
	return nil, PredictOutput{Predictions: preds, Likely: s.predictor.IsReactionLikely(in.Text)}, nil
}

// ── detect_intensity ─────────────────────────────────────────────────────────

// IntensityOutput is the result of detect_intensity.
type IntensityOutput struct {
	intensity.Result
	Description string `json:"description"`
}

func (s *Server) detectIntensity(_ context.Context, _ *mcpsdk.CallToolRequest, in TextInput) (*mcpsdk.CallToolResult, IntensityOutput, error) {
	r := intensity.Detect(in.Text)
	return nil, IntensityOutput{Result: r, Description: r.Level.Description()}, nil
}

// ── add_keyword_mapping ──────────────────────────────────────────────────────

// MappingInput is the argument of add_keyword_mapping.
type MappingInput struct {
	Keyword     string `json:"keyword" jsonschema:"word or phrase that triggers the reaction"`
	Emoji       string `json:"emoji,omitempty" jsonschema:"emoji to suggest"`
	Text        string `json:"text,omitempty" jsonschema:"short text reaction"`
	SearchQuery string `json:"search_query,omitempty" jsonschema:"GIF search query"`
}

// MappingOutput is the result of add_keyword_mapping.
type MappingOutput struct {
	Keyword  string          `json:"keyword"`
	Mapping  keyword.Mapping `json:"mapping"`
	Replaced bool            `json:"replaced"`
}

func (s *Server) addMapping(ctx context.Context, _ *mcpsdk.CallToolRequest, in MappingInput) (*mcpsdk.CallToolResult, MappingOutput, error) {
	mp := keyword.Mapping{Emoji: in.Emoji, Text: in.Text, SearchQuery: in.SearchQuery}
	if mp == (keyword.Mapping{}) {
		return nil, MappingOutput{}, errors.New("mapping needs an emoji, text or search query")
	}
	_, replaced := s.keywords.CustomMappings()[strings.ToLower(strings.TrimSpace(in.Keyword))]
	if err := s.keywords.AddCustomMapping(ctx, in.Keyword, mp); err != nil {
		return nil, MappingOutput{}, err
	}
	return nil, MappingOutput{Keyword: in.Keyword, Mapping: mp, Replaced: replaced}, nil
}

// ── search_media ─────────────────────────────────────────────────────────────

// MediaInput is the argument of search_media.
type MediaInput struct {
	Query string `json:"query" jsonschema:"search terms"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// MediaOutput is the result of search_media.
type MediaOutput struct {
	Items []types.MediaItem `json:"items"`
}

func (s *Server) searchMedia(ctx context.Context, _ *mcpsdk.CallToolRequest, in MediaInput) (*mcpsdk.CallToolResult, MediaOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultMediaLimit
	}
	limit = min(limit, maxMediaLimit)
	items, err := s.media.Search(ctx, in.Query, limit)
	if err != nil {
		return nil, MediaOutput{}, fmt.Errorf("search media: %w", err)
	}
	if items == nil {
		items = []types.MediaItem{}
	}
	return nil, MediaOutput{Items: items}, nil
}

// ── preference_stats ─────────────────────────────────────────────────────────

// StatsOutput is the result of preference_stats.
type StatsOutput struct {
	preference.Stats
	FavoriteEmojis []preference.Count `json:"favorite_emojis"`
}

func (s *Server) preferenceStats(context.Context, *mcpsdk.CallToolRequest, struct{}) (*mcpsdk.CallToolResult, StatsOutput, error) {
	fav := s.prefs.FavoriteEmojis(0)
	if fav == nil {
		fav = []preference.Count{}
	}
	return nil, StatsOutput{Stats: s.prefs.Stats(), FavoriteEmojis: fav}, nil
}
