package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"buildtime-agent/src/logger"
	"buildtime-agent/src/mcp"
	"buildtime-agent/src/store"
)

// mcpServerCmd serves the MCP tools over stdio
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Serve build time tools over the Model Context Protocol (stdio)",
	Long: `Run an MCP server on stdin/stdout exposing build_time_distribution,
get_run_report and list_runs. Runs are kept in memory, or in Postgres when
POSTGRES_DSN is set. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.Validate(); err != nil {
			return err
		}
		// stdout carries the protocol
		log := logger.NewSlogLoggerFormat(os.Stderr, "text", verbose)

		var st store.Store = store.NewMemoryStore()
		if appConfig.PostgresDSN != "" {
			pg, err := openStore(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			st = pg
		}
		defer st.Close()

		server := mcp.NewServer(appConfig, newClient(appConfig), st, log)
		if err := server.Run(); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}
