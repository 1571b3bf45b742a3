// Package config provides configuration management for buildtime.
//
// Values are layered: built-in defaults, then the YAML config file, then
// BUILDTIME_* environment variables. Command-line flags are applied on top
// by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"buildtime-agent/src/filter"
)

const (
	envPrefix = "BUILDTIME"

	// HoursAll selects the full build history.
	HoursAll = "all"

	UnitSeconds      = "seconds"
	UnitMilliseconds = "milliseconds"

	DefaultHours       = "24"
	DefaultConcurrency = 5
)

// Config holds the application configuration.
type Config struct {
	ServerURL     string `yaml:"server_url" envconfig:"SERVER_URL"`
	Username      string `yaml:"username" envconfig:"USERNAME"`
	Password      string `yaml:"password" envconfig:"PASSWORD"`
	AccessKey     string `yaml:"access_key" envconfig:"ACCESS_KEY"`
	AllowInsecure bool   `yaml:"allow_insecure" envconfig:"ALLOW_INSECURE"`

	// Hours is a whole number of hours or "all". Since, when set, wins.
	Hours       string `yaml:"hours" envconfig:"HOURS"`
	Since       string `yaml:"since" envconfig:"SINCE"`
	Concurrency int    `yaml:"concurrency" envconfig:"CONCURRENCY"`

	Tag         string `yaml:"tag" envconfig:"TAG"`
	CustomValue string `yaml:"custom_value" envconfig:"CUSTOM_VALUE"`
	SuccessOnly bool   `yaml:"success_only" envconfig:"SUCCESS_ONLY"`

	Unit             string        `yaml:"unit" envconfig:"UNIT"`
	SkipInconsistent bool          `yaml:"skip_inconsistent" envconfig:"SKIP_INCONSISTENT"`
	StallTimeout     time.Duration `yaml:"stall_timeout" envconfig:"STALL_TIMEOUT"`

	RedpandaBrokers []string `yaml:"redpanda_brokers" envconfig:"REDPANDA_BROKERS"`
	PostgresDSN     string   `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	MetricsAddr     string   `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	LogFormat       string   `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		Hours:       DefaultHours,
		Concurrency: DefaultConcurrency,
		Unit:        UnitSeconds,
		LogFormat:   "console",
	}
}

// DefaultPath returns ~/.buildtime/config.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".buildtime", "config.yaml"), nil
}

// Load layers defaults, the YAML file at path and the environment. An empty
// path selects DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := cfg.mergeFile(path); err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
		return nil, err
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings needed to start a run.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required (set BUILDTIME_SERVER_URL or --server)")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_url %q is not an absolute URL", c.ServerURL)
	}
	if c.Username != "" && c.AccessKey != "" {
		return fmt.Errorf("username and access_key are mutually exclusive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := c.SinceTime(time.Now()); err != nil {
		return err
	}
	if _, err := c.Criteria(); err != nil {
		return err
	}
	if _, err := c.UnitScale(); err != nil {
		return err
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("stall_timeout must not be negative")
	}
	switch c.LogFormat {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("log_format %q must be console, text or json", c.LogFormat)
	}
	return nil
}

// SinceTime resolves the discovery start. Since takes precedence over Hours;
// Hours "all" means the epoch.
func (c *Config) SinceTime(now time.Time) (time.Time, error) {
	if c.Since != "" {
		t, err := time.Parse(time.RFC3339, c.Since)
		if err != nil {
			return time.Time{}, fmt.Errorf("since %q is not an RFC 3339 time: %w", c.Since, err)
		}
		return t, nil
	}

	hours := strings.TrimSpace(c.Hours)
	if hours == "" {
		hours = DefaultHours
	}
	if strings.EqualFold(hours, HoursAll) {
		return time.UnixMilli(0), nil
	}
	n, err := strconv.Atoi(hours)
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("hours %q must be a non-negative integer or %q", c.Hours, HoursAll)
	}
	return now.Add(-time.Duration(n) * time.Hour), nil
}

// Criteria builds the build filter.
func (c *Config) Criteria() (filter.Criteria, error) {
	criteria := filter.Criteria{Tag: c.Tag, SuccessOnly: c.SuccessOnly}
	if c.CustomValue != "" {
		kv, err := filter.ParseKeyValue(c.CustomValue)
		if err != nil {
			return filter.Criteria{}, err
		}
		criteria.CustomValue = &kv
	}
	return criteria, nil
}

// UnitScale returns the divisor applied to millisecond values on output.
func (c *Config) UnitScale() (float64, error) {
	switch c.Unit {
	case "", UnitSeconds:
		return 1000.0, nil
	case UnitMilliseconds:
		return 1.0, nil
	default:
		return 0, fmt.Errorf("unit %q must be %s or %s", c.Unit, UnitSeconds, UnitMilliseconds)
	}
}
