// Package config defines the service configuration and how it is loaded.
package config

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreURI selects the backend: memory:// or redis://host:port/db.
	StoreURI string `koanf:"store_uri"`
	// RedisPrefix namespaces every Redis key.
	RedisPrefix string `koanf:"redis_prefix"`
	// DataDir holds the Pebble journal of the memory store. Empty disables
	// persistence.
	DataDir string `koanf:"data_dir"`
	// FlushInterval is how often the journal is written.
	FlushInterval time.Duration `koanf:"flush_interval"`
	// SeedFile is a JSON array of companies loaded at startup.
	SeedFile string `koanf:"seed_file"`

	// RankLimit is N for the top and bottom modes.
	RankLimit int `koanf:"rank_limit"`

	// QueueSize bounds the in-memory tick queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of tick workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many tick ids are remembered. Zero keeps all of
	// them.
	DedupeSize int `koanf:"dedupe_size"`

	// KafkaBrokers enables the tick consumer when non-empty.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
	KafkaGroup   string   `koanf:"kafka_group"`

	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingEndpoint   string  `koanf:"tracing_endpoint"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`

	// MetricsEnabled turns the Prometheus recorders on or off.
	MetricsEnabled   bool   `koanf:"metrics_enabled"`
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// MetricsLabels are constant labels added to every series.
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreURI:          "memory://",
		RedisPrefix:       "capboard",
		FlushInterval:     time.Second,
		RankLimit:         10,
		QueueSize:         100_000,
		WorkerCount:       runtime.NumCPU() * 2,
		DedupeSize:        500_000,
		KafkaTopic:        "capboard.ticks",
		KafkaGroup:        "capboard",
		TracingSampleRate: 1.0,
		MetricsEnabled:    true,
		MetricsNamespace:  "capboard",
		MetricsSubsystem:  "leaderboard",
	}
}

// StoreScheme returns the scheme of StoreURI.
func (c *Config) StoreScheme() string {
	u, err := url.Parse(c.StoreURI)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log_format %q is not text or json", c.LogFormat))
	}
	if c.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("addr must not be empty"))
	}
	switch c.StoreScheme() {
	case "memory", "redis", "rediss":
	default:
		result = multierror.Append(result, fmt.Errorf("store_uri %q must use memory://, redis:// or rediss://", c.StoreURI))
	}
	if c.FlushInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval))
	}
	if c.RankLimit < 1 {
		result = multierror.Append(result, fmt.Errorf("rank_limit must be at least 1, got %d", c.RankLimit))
	}
	if c.QueueSize < 1 {
		result = multierror.Append(result, fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize))
	}
	if c.WorkerCount < 1 {
		result = multierror.Append(result, fmt.Errorf("worker_count must be at least 1, got %d", c.WorkerCount))
	}
	if c.DedupeSize < 0 {
		result = multierror.Append(result, fmt.Errorf("dedupe_size must not be negative, got %d", c.DedupeSize))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		result = multierror.Append(result, fmt.Errorf("kafka_topic is required with kafka_brokers"))
	}
	if c.MetricsNamespace == "" {
		result = multierror.Append(result, fmt.Errorf("metrics_namespace must not be empty"))
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		result = multierror.Append(result, fmt.Errorf("tracing_sample_rate must be between 0 and 1, got %g", c.TracingSampleRate))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
