package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/emotive/internal/config"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	// cfg is loaded by the root command's persistent pre-run.
	cfg *config.Config

	// level backs the default logger so reloads can change verbosity.
	level = new(slog.LevelVar)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "emotive",
	Short: "Real-time reaction suggestions for live conversations",
	Long: `Emotive listens to a live transcript, matches what was said against
keyword rules and an emotion taxonomy, and suggests emoji and GIF reactions
with sub-second latency.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config is expanded")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")
	rootCmd.Version = version
}

// initConfig loads environment overrides and the config file, then installs
// the default logger. A missing config file is only an error when --config
// was given explicitly.
func initConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	loaded, err := config.Load(cfgFile)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", cfgFile)
	default:
		return err
	}

	if logLevel != "" {
		l := config.LogLevel(logLevel)
		if !l.IsValid() {
			return fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", logLevel)
		}
		cfg.Server.LogLevel = l
	}
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
