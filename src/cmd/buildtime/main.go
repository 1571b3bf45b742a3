// Package main provides the buildtime CLI.
// It streams builds from the build export API and reports the build time
// distribution, optionally publishing results to Redpanda and Postgres.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"buildtime-agent/src/config"
	"buildtime-agent/src/export"
	"buildtime-agent/src/logger"
	"buildtime-agent/src/pipeline"
)

var (
	// Application configuration, after flag overrides
	appConfig *config.Config
	appLogger logger.Logger
	mode      pipeline.Mode

	configPath string
	verbose    bool
	overrides  flagOverrides
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buildtime",
	Short: "buildtime - build time distribution from the build export API",
	Long: `buildtime streams build scans from the build export API and reports
the distribution of build durations as an HDR percentile table.

Settings are read from ~/.buildtime/config.yaml, then BUILDTIME_*
environment variables, then flags.

It supports two modes:
- Local Mode: results are printed (and saved when POSTGRES_DSN is set)
- Distributed Mode: builds and reports are also published to Redpanda

Mode is auto-detected based on BUILDTIME_REDPANDA_BROKERS.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		overrides.apply(cmd.Flags(), cfg)

		appConfig = cfg
		appLogger = logger.New(cfg.LogFormat, verbose)
		mode = pipeline.DetectMode(cfg)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.buildtime/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	overrides.register(flags)

	rootCmd.AddCommand(histogramCmd)
	rootCmd.AddCommand(averageCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpServerCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, export.WrapError(err))
		os.Exit(1)
	}
}
