package main

import (
	"time"

	"github.com/spf13/pflag"

	"buildtime-agent/src/config"
	"buildtime-agent/src/export"
)

// flagOverrides holds command-line values. Only flags the user set replace
// configuration values.
type flagOverrides struct {
	serverURL        string
	username         string
	accessKey        string
	allowInsecure    bool
	hours            string
	since            string
	concurrency      int
	tag              string
	customValue      string
	successOnly      bool
	unit             string
	skipInconsistent bool
	stallTimeout     time.Duration
	brokers          []string
	postgresDSN      string
	metricsAddr      string
	logFormat        string
}

func (o *flagOverrides) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.serverURL, "server", "", "build export server URL")
	flags.StringVar(&o.username, "username", "", "basic auth username (password from BUILDTIME_PASSWORD)")
	flags.StringVar(&o.accessKey, "access-key", "", "access key sent as a bearer token")
	flags.BoolVar(&o.allowInsecure, "insecure", false, "skip TLS certificate verification")
	flags.StringVar(&o.hours, "hours", config.DefaultHours, `hours of history to process, or "all"`)
	flags.StringVar(&o.since, "since", "", "RFC 3339 start time (overrides --hours)")
	flags.IntVarP(&o.concurrency, "concurrency", "c", config.DefaultConcurrency, "build event feeds open at once")
	flags.StringVar(&o.tag, "tag", "", "only builds with this tag")
	flags.StringVar(&o.customValue, "custom-value", "", "only builds with this custom value (key:value)")
	flags.BoolVar(&o.successOnly, "success-only", false, "only successful builds")
	flags.StringVar(&o.unit, "unit", config.UnitSeconds, "output unit: seconds or milliseconds")
	flags.BoolVar(&o.skipInconsistent, "skip-inconsistent", false, "skip builds without a usable start and finish")
	flags.DurationVar(&o.stallTimeout, "stall-timeout", 0, "reconnect a feed silent for this long (0 disables)")
	flags.StringSliceVar(&o.brokers, "redpanda-brokers", nil, "Redpanda brokers for publishing results")
	flags.StringVar(&o.postgresDSN, "postgres-dsn", "", "Postgres DSN for saving runs")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&o.logFormat, "log-format", "", "log format: console, text or json")
}

func (o *flagOverrides) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("server", func() { cfg.ServerURL = o.serverURL })
	set("username", func() { cfg.Username = o.username })
	set("access-key", func() { cfg.AccessKey = o.accessKey })
	set("insecure", func() { cfg.AllowInsecure = o.allowInsecure })
	set("hours", func() { cfg.Hours = o.hours })
	set("since", func() { cfg.Since = o.since })
	set("concurrency", func() { cfg.Concurrency = o.concurrency })
	set("tag", func() { cfg.Tag = o.tag })
	set("custom-value", func() { cfg.CustomValue = o.customValue })
	set("success-only", func() { cfg.SuccessOnly = o.successOnly })
	set("unit", func() { cfg.Unit = o.unit })
	set("skip-inconsistent", func() { cfg.SkipInconsistent = o.skipInconsistent })
	set("stall-timeout", func() { cfg.StallTimeout = o.stallTimeout })
	set("redpanda-brokers", func() { cfg.RedpandaBrokers = o.brokers })
	set("postgres-dsn", func() { cfg.PostgresDSN = o.postgresDSN })
	set("metrics-addr", func() { cfg.MetricsAddr = o.metricsAddr })
	set("log-format", func() { cfg.LogFormat = o.logFormat })
}

// newClient builds the export client. An access key wins over basic auth.
func newClient(cfg *config.Config) *export.Client {
	cred := export.Credential{Username: cfg.Username, Password: cfg.Password, Token: cfg.AccessKey}
	return export.NewClient(cfg.ServerURL, cred, export.WithInsecureTLS(cfg.AllowInsecure))
}
