package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/emotive/internal/app"
	"github.com/MrWong99/emotive/internal/config"
	"github.com/MrWong99/emotive/internal/observe"
)

var (
	serveAutoEnable bool
	serveWatch      time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveAutoEnable, "enable", false, "enable the suggestion pipeline at startup (overrides server.auto_enable)")
	serveCmd.Flags().DurationVar(&serveWatch, "watch", 5*time.Second, "config file polling interval for hot reload, SIGHUP forces a reload; 0 disables both")
}

// serveCmd runs the HTTP and websocket server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the suggestion server",
	Long: `Serve the REST API, the suggestion websocket, health probes, Prometheus
metrics and, when server.mcp_path is set, the MCP tool endpoint.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("enable") {
		cfg.Server.AutoEnable = serveAutoEnable
	}

	slog.Info("emotive starting",
		"version", version,
		"config", cfgFile,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Storage ───────────────────────────────────────────────────────────────
	store, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("storage close error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, store)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	printStartupSummary(cmd, cfg)

	application, err := app.New(ctx, cfg, providers, app.WithStore(store), app.WithVersion(version))
	if err != nil {
		return err
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if serveWatch > 0 {
		if _, statErr := os.Stat(cfgFile); statErr == nil {
			w, err := config.NewWatcher(cfgFile, func(_, next *config.Config, d config.ConfigDiff) {
				if d.LogLevelChanged {
					level.Set(slogLevel(d.NewLogLevel))
					slog.Info("config: log level changed", "level", d.NewLogLevel)
				}
				application.ApplyConfig(next, d)
			}, config.WithInterval(serveWatch))
			if err != nil {
				slog.Warn("config watcher disabled", "err", err)
			} else {
				defer w.Stop()
			}
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// reloadOnHangup re-reads the config file whenever the process gets SIGHUP.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := w.Reload(); err != nil {
				slog.Warn("config reload on SIGHUP failed", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.ErrOrStderr()
	row := func(label, value string) {
		if len(value) > 24 {
			value = value[:21] + "..."
		}
		fmt.Fprintf(out, "|  %-14s : %-24s |\n", label, value)
	}
	fmt.Fprintln(out, "+-------------------------------------------+")
	fmt.Fprintln(out, "|          emotive startup summary          |")
	fmt.Fprintln(out, "+-------------------------------------------+")
	row("Embeddings", describeProvider(cfg.Providers.Embeddings))
	if cfg.Providers.EmbeddingsFallback.Name != "" {
		row("  fallback", describeProvider(cfg.Providers.EmbeddingsFallback))
	}
	row("Media", describeProvider(cfg.Providers.Media))
	if cfg.Providers.MediaFallback.Name != "" {
		row("  fallback", describeProvider(cfg.Providers.MediaFallback))
	}
	row("Transcript", describeProvider(cfg.Providers.Transcript))
	row("Storage", string(cfg.Storage.Backend))
	row("Display mode", cfg.Pipeline.DisplayMode)
	if cfg.Server.MCPPath != "" {
		row("MCP endpoint", cfg.Server.MCPPath)
	}
	row("Listen addr", cfg.Server.ListenAddr)
	fmt.Fprintln(out, "+-------------------------------------------+")
}
