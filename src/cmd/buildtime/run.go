package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"buildtime-agent/src/broker"
	"buildtime-agent/src/config"
	"buildtime-agent/src/logger"
	"buildtime-agent/src/metrics"
	"buildtime-agent/src/pipeline"
	"buildtime-agent/src/report"
	"buildtime-agent/src/store"
	"buildtime-agent/src/tui"
)

var (
	outputFormat string
	useTUI       bool
)

// histogramCmd runs the pipeline and prints the percentile distribution
var histogramCmd = &cobra.Command{
	Use:   "histogram",
	Short: "Print the build time distribution",
	Long: `Stream every build since the configured start, reduce each build's
events to a duration, and print the HDR percentile distribution of the
builds that pass the filters.

The first interrupt stops discovery and drains builds already in flight;
the report then covers those builds. A second interrupt aborts.

Example:
  buildtime histogram --hours 48 --tag CI --success-only`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(outputFormat)
		if format != "text" && format != "json" {
			return fmt.Errorf("unknown output format %q (text or json)", outputFormat)
		}

		result, err := executeRun(cmd.Context(), appConfig, useTUI && format == "text")
		if err != nil {
			return err
		}

		if format == "json" {
			return report.JSON(os.Stdout, result)
		}
		scale, _ := appConfig.UnitScale()
		return report.Text(os.Stdout, result, report.UnitFor(scale))
	},
}

// averageCmd runs the pipeline and prints the mean build time
var averageCmd = &cobra.Command{
	Use:   "average",
	Short: "Print the average build time in seconds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := executeRun(cmd.Context(), appConfig, useTUI)
		if err != nil {
			return err
		}
		return report.Average(os.Stdout, result)
	},
}

func init() {
	histogramCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")
	for _, cmd := range []*cobra.Command{histogramCmd, averageCmd} {
		cmd.Flags().BoolVar(&useTUI, "tui", false, "show live progress (terminal only)")
	}
}

// executeRun runs one pipeline with the configured sinks, metrics and
// interrupt handling.
func executeRun(ctx context.Context, cfg *config.Config, withTUI bool) (*pipeline.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if withTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
		appLogger.Info("[CLI] stdout is not a terminal, progress view disabled")
		withTUI = false
	}

	log := appLogger
	if withTUI {
		// TUI mode needs quiet logging to prevent interference
		log = logger.NewSilentLogger()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sinks, closeSinks, err := setupSinks(runCtx, cfg, mode, log)
	if err != nil {
		return nil, err
	}
	defer closeSinks()

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := collector.Serve(runCtx, cfg.MetricsAddr); err != nil {
				log.Error("[CLI] Metrics server failed: %v", err)
			}
		}()
		log.Info("[CLI] Serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	opts, err := pipeline.OptionsFromConfig(cfg, time.Now())
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	opts = append(opts,
		pipeline.WithRunID(runID),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(collector),
		pipeline.WithSinks(sinks...),
	)

	log.Info("[CLI] Running in %s mode", mode)

	var p *pipeline.Pipeline
	var mon *tui.Monitor
	if withTUI {
		mon = tui.NewMonitor(os.Stdout, runID, func() { p.Stop() }, cancel)
		opts = append(opts, pipeline.WithProgress(mon.Progress))
	}
	p = pipeline.New(newClient(cfg), opts...)

	done := make(chan struct{})
	defer close(done)
	go handleSignals(p, cancel, log, done)

	if mon != nil {
		return mon.Run(func() (*pipeline.Result, error) { return p.Run(runCtx) })
	}
	return p.Run(runCtx)
}

// handleSignals drains on the first interrupt and aborts on the second.
func handleSignals(p *pipeline.Pipeline, cancel context.CancelFunc, log logger.Logger, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		log.Info("[CLI] Interrupted, draining in-flight builds (interrupt again to abort)")
		p.Stop()
	case <-done:
		return
	}

	select {
	case <-sigCh:
		log.Info("[CLI] Aborting")
		cancel()
	case <-done:
	}
}

// brokerPingTimeout bounds the startup reachability check.
const brokerPingTimeout = 5 * time.Second

// connectRedpanda creates the broker and checks that a seed broker answers.
func connectRedpanda(ctx context.Context, cfg *config.Config, log logger.Logger) (*broker.RedpandaBroker, error) {
	b, err := broker.NewRedpandaBroker(cfg.RedpandaBrokers, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redpanda: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, brokerPingTimeout)
	defer cancel()
	if err := b.Ping(pingCtx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// setupSinks wires result sinks for the detected mode. The returned func
// closes them.
func setupSinks(ctx context.Context, cfg *config.Config, m pipeline.Mode, log logger.Logger) ([]pipeline.Sink, func(), error) {
	var sinks []pipeline.Sink
	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Error("[CLI] Failed to close sink: %v", err)
			}
		}
	}

	if m == pipeline.DistributedMode {
		b, err := connectRedpanda(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, b)
		sinks = append(sinks, pipeline.NewBrokerSink(b))
		log.Info("[CLI] Publishing to Redpanda at %s", strings.Join(cfg.RedpandaBrokers, ","))
	}

	if cfg.PostgresDSN != "" {
		st, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		closers = append(closers, st)
		sinks = append(sinks, pipeline.NewStoreSink(st))
		log.Info("[CLI] Saving runs to Postgres")
	}

	return sinks, closeAll, nil
}
