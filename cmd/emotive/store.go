package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/emotive/internal/app"
	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/pkg/kv"
)

var (
	prefsOutput string

	mappingEmoji  string
	mappingText   string
	mappingStyle  string
	mappingSearch string
)

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsStatsCmd, prefsExportCmd, prefsImportCmd, prefsResetCmd)
	prefsExportCmd.Flags().StringVarP(&prefsOutput, "output", "o", "", "write to this file instead of stdout")

	rootCmd.AddCommand(mappingsCmd)
	mappingsCmd.AddCommand(mappingsListCmd, mappingsSetCmd, mappingsRemoveCmd, mappingsClearCmd)
	mappingsSetCmd.Flags().StringVar(&mappingEmoji, "emoji", "", "emoji to suggest")
	mappingsSetCmd.Flags().StringVar(&mappingText, "text", "", "text reaction to suggest instead of an emoji")
	mappingsSetCmd.Flags().StringVar(&mappingStyle, "style", "", "display style of a text reaction")
	mappingsSetCmd.Flags().StringVar(&mappingSearch, "search-query", "", "media search query for this keyword")
}

// openStore opens the configured storage backend for a one-shot command.
func openStore(cmd *cobra.Command) (kv.Store, func(), error) {
	store, err := app.OpenStore(cmd.Context(), cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("storage close error", "err", err)
		}
	}, nil
}

// loadTracker opens storage and loads the stored preference profile.
func loadTracker(cmd *cobra.Command) (*preference.Tracker, func(), error) {
	store, closeStore, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	t := preference.New(preference.WithStore(store))
	if err := t.Load(cmd.Context()); err != nil {
		closeStore()
		return nil, nil, err
	}
	return t, closeStore, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── Preferences ───────────────────────────────────────────────────────────────

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Inspect and manage the learned preference profile",
}

var prefsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print profile statistics and favourites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, done, err := loadTracker(cmd)
		if err != nil {
			return err
		}
		defer done()
		return writeJSON(cmd.OutOrStdout(), struct {
			preference.Stats
			FavoriteEmojis     []preference.Count `json:"favorite_emojis"`
			FavoriteCategories []preference.Count `json:"favorite_categories"`
			MediaStyles        []preference.Count `json:"media_styles"`
		}{
			Stats:              t.Stats(),
			FavoriteEmojis:     t.FavoriteEmojis(5),
			FavoriteCategories: t.FavoriteCategories(5),
			MediaStyles:        t.PreferredMediaStyles(5),
		})
	},
}

var prefsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the profile as a JSON document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, done, err := loadTracker(cmd)
		if err != nil {
			return err
		}
		defer done()

		if prefsOutput == "" {
			return writeJSON(cmd.OutOrStdout(), t.Export())
		}
		f, err := os.Create(prefsOutput)
		if err != nil {
			return err
		}
		if err := writeJSON(f, t.Export()); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

var prefsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the profile with an exported document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var doc preference.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		t, done, err := loadTracker(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := t.Import(cmd.Context(), doc); err != nil {
			if errors.Is(err, preference.ErrUnsupportedVersion) {
				return fmt.Errorf("%s: document version %d, want %d", args[0], doc.Version, preference.Version)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d selections\n", t.Stats().TotalSelections)
		return nil
	},
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget all learned preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, done, err := loadTracker(cmd)
		if err != nil {
			return err
		}
		defer done()
		return t.Reset(cmd.Context())
	},
}

// ── Mappings ──────────────────────────────────────────────────────────────────

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage custom keyword mappings",
}

// loadMatcher opens storage and loads the custom mappings.
func loadMatcher(cmd *cobra.Command) (*keyword.Matcher, func(), error) {
	store, closeStore, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	m := keyword.New(keyword.WithStore(store))
	if err := m.LoadCustomMappings(cmd.Context()); err != nil {
		closeStore()
		return nil, nil, err
	}
	return m, closeStore, nil
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List custom mappings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, done, err := loadMatcher(cmd)
		if err != nil {
			return err
		}
		defer done()

		custom := m.CustomMappings()
		keys := make([]string, 0, len(custom))
		for k := range custom {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEYWORD\tEMOJI\tTEXT\tSEARCH QUERY")
		for _, k := range keys {
			mp := custom[k]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k, mp.Emoji, mp.Text, mp.SearchQuery)
		}
		return tw.Flush()
	},
}

var mappingsSetCmd = &cobra.Command{
	Use:   "set <keyword>",
	Short: "Add or replace a custom mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if mappingEmoji == "" && mappingText == "" {
			return errors.New("one of --emoji or --text is required")
		}
		m, done, err := loadMatcher(cmd)
		if err != nil {
			return err
		}
		defer done()
		return m.AddCustomMapping(cmd.Context(), args[0], keyword.Mapping{
			Emoji:       mappingEmoji,
			Text:        mappingText,
			Style:       mappingStyle,
			SearchQuery: mappingSearch,
		})
	},
}

var mappingsRemoveCmd = &cobra.Command{
	Use:   "remove <keyword>",
	Short: "Remove a custom mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, done, err := loadMatcher(cmd)
		if err != nil {
			return err
		}
		defer done()
		return m.RemoveMapping(cmd.Context(), args[0])
	},
}

var mappingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every custom mapping",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, done, err := loadMatcher(cmd)
		if err != nil {
			return err
		}
		defer done()
		return m.ClearCustomMappings(cmd.Context())
	},
}
