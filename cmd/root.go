// Package cmd provides the iecho CLI commands.
//
// Commands:
//   - serve: HTTP API server with NDJSON streaming
//   - mcp: Model Context Protocol server on stdio
//   - version: build information
//
// All long-running commands shut down gracefully on SIGINT/SIGTERM via
// context cancellation.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "iecho",
	Short: "iECHO RAG chatbot service",
	Long: `iECHO answers tuberculosis and agriculture questions for frontline
health and extension workers, grounding every answer in an indexed
knowledge base and citing its sources.

Run "iecho serve" to start the HTTP API, or "iecho mcp" to expose the
assistant to MCP clients over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
