package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iecho-project/iecho/internal/app"
	"github.com/iecho-project/iecho/internal/config"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the iECHO HTTP API server.

Listens on the configured host and port (IECHO_HOST, IECHO_PORT) and
serves the chat, feedback, status, and documents endpoints. The server
drains in-flight requests on SIGINT/SIGTERM before exiting.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured listen port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	ctx := cmd.Context()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	a.Logger.Info("starting iECHO API server", "version", Version)
	return a.Run(ctx)
}
