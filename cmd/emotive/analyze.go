package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/emotive/internal/intensity"
	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/predict"
	"github.com/MrWong99/emotive/internal/suggest"
	"github.com/MrWong99/emotive/pkg/types"
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

type analysis struct {
	Text           string               `json:"text"`
	Suggestions    []types.Suggestion   `json:"suggestions"`
	Intensity      intensity.Result     `json:"intensity"`
	Predictions    []predict.Prediction `json:"predictions"`
	ReactionLikely bool                 `json:"reaction_likely"`
	MediaQueries   []string             `json:"media_queries,omitempty"`
}

// analyzeCmd runs the rule-based stages on a phrase without a server.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <text...>",
	Short: "Show the rule-based suggestions, intensity and predictions for a phrase",
	Long: `Analyze runs keyword matching (including stored custom mappings), intensity
detection and reaction prediction on the given text and prints the result as
JSON. It needs no providers and never arms keyword cooldowns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		p := cfg.Pipeline
		kw := keyword.New(
			keyword.WithStore(store),
			keyword.WithMinConfidence(p.MinConfidence),
			keyword.WithMaxSuggestions(p.MaxSuggestions),
			keyword.WithPhoneticMatching(p.PhoneticMatching),
		)
		if err := kw.LoadCustomMappings(cmd.Context()); err != nil {
			return err
		}

		text := strings.Join(args, " ")
		level := intensity.Detect(text)
		suggestions := suggest.ApplyIntensity(kw.Preview(text), level)
		pred := predict.New()

		out := analysis{
			Text:           text,
			Suggestions:    suggestions,
			Intensity:      level,
			Predictions:    pred.Predict(text),
			ReactionLikely: pred.IsReactionLikely(text),
		}
		if len(suggestions) > 0 {
			top := suggestions[0]
			out.MediaQueries = kw.MediaQueries(text, keyword.QueryHint{
				Emoji:          top.Emoji,
				Keyword:        top.Keyword,
				SearchQuery:    top.SearchQuery,
				IntensityLevel: top.IntensityLevel,
			})
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
