package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"buildtime-agent/src/broker"
	"buildtime-agent/src/contracts"
	"buildtime-agent/src/logger"
	"buildtime-agent/src/pipeline"
	"buildtime-agent/src/report"
)

var (
	watchGroup  string
	watchOutput string
)

// watchCmd follows reports published by distributed runs
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print run reports as they are published to Redpanda",
	Long: `Join a consumer group on the buildtime.reports topic and print every
run report, starting with the oldest one not yet consumed by the group.

This command requires REDPANDA_BROKERS (BUILDTIME_REDPANDA_BROKERS or
--redpanda-brokers).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mode != pipeline.DistributedMode {
			return fmt.Errorf("redpanda_brokers is required (set BUILDTIME_REDPANDA_BROKERS or --redpanda-brokers)")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := connectRedpanda(ctx, appConfig, appLogger)
		if err != nil {
			return err
		}
		defer b.Close()

		msgs, err := b.Subscribe(ctx, contracts.TopicReports, watchGroup)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", contracts.TopicReports, err)
		}
		appLogger.Info("[CLI] Watching %s as group %s", contracts.TopicReports, watchGroup)
		return printReports(ctx, msgs, os.Stdout, watchOutput, appLogger)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchGroup, "group", "buildtime-watch", "consumer group id")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "text", "output format: text or json")
}

// printReports prints each report until msgs closes or ctx ends. Messages
// that are not reports are logged and skipped.
func printReports(ctx context.Context, msgs <-chan broker.Message, w io.Writer, output string, log logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var run contracts.RunReport
			if err := msg.Decode(&run); err != nil {
				log.Error("[CLI] Skipping message at offset %d: %v", msg.Offset, err)
				continue
			}
			if err := report.Run(w, &run, nil, output); err != nil {
				return fmt.Errorf("failed to print report %s: %w", run.RunID, err)
			}
		}
	}
}
