package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/MrWong99/emotive/internal/app"
	"github.com/MrWong99/emotive/internal/config"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// mcpCmd exposes the reaction tools to an MCP client over stdio.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the reaction tools over MCP on stdin/stdout",
	Long: `Run the MCP tool server on stdio so assistants can call suggest_reactions,
predict_reactions, detect_intensity and the other tools directly. Logs go to
stderr; stdout carries only protocol messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, closeStore, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		reg := config.NewRegistry()
		registerBuiltinProviders(reg, store)
		providers, err := buildProviders(cfg, reg)
		if err != nil {
			return fmt.Errorf("build providers: %w", err)
		}
		// The tools never read a live transcript.
		providers.Transcript = nil

		application, err := app.New(ctx, cfg, providers, app.WithStore(store), app.WithVersion(version))
		if err != nil {
			return err
		}
		defer func() { _ = application.Shutdown(cmd.Context()) }()

		slog.Info("mcp: serving on stdio", "version", version)
		return application.Tools().Run(ctx, &mcpsdk.StdioTransport{})
	},
}
