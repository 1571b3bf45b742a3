package pipeline

import (
	"fmt"
	"strings"
	"time"

	"buildtime-agent/src/config"
)

// Mode selects where run results are published.
type Mode int

const (
	// LocalMode prints results only, persisting runs when Postgres is configured.
	LocalMode Mode = iota
	// DistributedMode also publishes builds and reports to Redpanda.
	DistributedMode
)

func (m Mode) String() string {
	switch m {
	case DistributedMode:
		return "distributed"
	default:
		return "local"
	}
}

// DetectMode picks DistributedMode when Redpanda brokers are configured.
func DetectMode(cfg *config.Config) Mode {
	if len(cfg.RedpandaBrokers) > 0 {
		return DistributedMode
	}
	return LocalMode
}

// OptionsFromConfig maps run settings in cfg to pipeline options. now
// anchors an hours-relative start.
func OptionsFromConfig(cfg *config.Config, now time.Time) ([]Option, error) {
	since, err := cfg.SinceTime(now)
	if err != nil {
		return nil, err
	}
	criteria, err := cfg.Criteria()
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	return []Option{
		WithServerURL(strings.TrimRight(cfg.ServerURL, "/")),
		WithSince(since),
		WithCriteria(criteria),
		WithConcurrency(cfg.Concurrency),
		WithSkipInconsistent(cfg.SkipInconsistent),
		WithStallTimeout(cfg.StallTimeout),
	}, nil
}
