package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"buildtime-agent/src/config"
	"buildtime-agent/src/report"
	"buildtime-agent/src/store"
)

var (
	runsLimit  int
	showOutput string
)

// runsCmd lists saved runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs saved in Postgres",
	Long: `Query Postgres for saved runs, newest first.

This command requires POSTGRES_DSN (BUILDTIME_POSTGRES_DSN or --postgres-dsn).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		return report.Runs(os.Stdout, runs)
	},
}

// showCmd displays one saved run
var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a run saved in Postgres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]
		ctx := cmd.Context()

		st, err := openStore(ctx, appConfig)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(ctx, runID)
		if errors.Is(err, store.ErrRunNotFound) {
			return fmt.Errorf("no run found with id %s", runID)
		}
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		builds, err := st.GetBuilds(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to get builds: %w", err)
		}
		return report.Run(os.Stdout, run, builds, showOutput)
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "max runs to list")
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "text", "output format: text or json")
}

func openStore(ctx context.Context, cfg *config.Config) (*store.PostgresStore, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres_dsn is required (set BUILDTIME_POSTGRES_DSN or --postgres-dsn)")
	}
	st, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return st, nil
}
