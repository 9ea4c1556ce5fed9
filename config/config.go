// Package config layers queue settings from defaults, a YAML file,
// GOFASTQ_* environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/franksops/gofastq/filter"
)

// MaxRetryDelay bounds the wait before each automatic retry.
const MaxRetryDelay = time.Second

// Connection-loss policies.
const (
	OnLossRetry = "retry"
	OnLossFail  = "fail"
)

// Config holds every tunable of the queue engine and the CLI.
type Config struct {
	StateDir string       `yaml:"state_dir"`
	LogLevel string       `yaml:"log_level"`
	TUI      bool         `yaml:"tui"`
	Retry    RetryConfig  `yaml:"retry"`
	Queue    QueueConfig  `yaml:"queue"`
	Filters  []FilterRule `yaml:"filters"`
}

// RetryConfig is the automatic retry policy for failed file transfers.
type RetryConfig struct {
	Enabled bool          `yaml:"enabled"`
	Count   int           `yaml:"count"`
	Delay   time.Duration `yaml:"delay"`
}

// AttemptDelay is Delay clamped to [0, MaxRetryDelay].
func (r RetryConfig) AttemptDelay() time.Duration {
	switch {
	case r.Delay < 0:
		return 0
	case r.Delay > MaxRetryDelay:
		return MaxRetryDelay
	}
	return r.Delay
}

// QueueConfig controls scheduling and scanning.
type QueueConfig struct {
	SkipEmptyDirs      bool   `yaml:"skip_empty_dirs"`
	ConnectionsPerSite int    `yaml:"connections_per_site"`
	Workers            int    `yaml:"workers"`
	OnConnectionLoss   string `yaml:"on_connection_loss"`
	RemoveFinished     bool   `yaml:"remove_finished"`
}

// FilterRule is the file form of filter.Rule.
type FilterRule struct {
	Pattern   string `yaml:"pattern"`
	Action    string `yaml:"action"`
	DirsOnly  bool   `yaml:"dirs_only"`
	FilesOnly bool   `yaml:"files_only"`
	MinSize   int64  `yaml:"min_size"`
	MaxSize   int64  `yaml:"max_size"`
	Priority  int    `yaml:"priority"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir: "./.gofastq-state",
		LogLevel: "info",
		TUI:      false,
		Retry: RetryConfig{
			Enabled: true,
			Count:   3,
			Delay:   time.Second,
		},
		Queue: QueueConfig{
			ConnectionsPerSite: 2,
			Workers:            16,
			OnConnectionLoss:   OnLossRetry,
		},
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays GOFASTQ_* variables read through getenv.
// Malformed values are reported and leave the field unchanged.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error

	if v := getenv("GOFASTQ_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := getenv("GOFASTQ_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("GOFASTQ_RETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GOFASTQ_RETRY_ENABLED: %w", err))
		} else {
			c.Retry.Enabled = b
		}
	}
	if v := getenv("GOFASTQ_RETRY_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GOFASTQ_RETRY_COUNT: %w", err))
		} else {
			c.Retry.Count = n
		}
	}
	if v := getenv("GOFASTQ_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GOFASTQ_RETRY_DELAY: %w", err))
		} else {
			c.Retry.Delay = d
		}
	}
	if v := getenv("GOFASTQ_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GOFASTQ_CONNECTIONS: %w", err))
		} else {
			c.Queue.ConnectionsPerSite = n
		}
	}
	return errors.Join(errs...)
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Retry.Count < 0 {
		errs = append(errs, fmt.Errorf("retry.count must not be negative, got %d", c.Retry.Count))
	}
	if c.Queue.ConnectionsPerSite < 1 {
		errs = append(errs, fmt.Errorf("queue.connections_per_site must be at least 1, got %d", c.Queue.ConnectionsPerSite))
	}
	if c.Queue.Workers < 1 {
		errs = append(errs, fmt.Errorf("queue.workers must be at least 1, got %d", c.Queue.Workers))
	}
	switch c.Queue.OnConnectionLoss {
	case OnLossRetry, OnLossFail:
	default:
		errs = append(errs, fmt.Errorf("queue.on_connection_loss must be %q or %q, got %q", OnLossRetry, OnLossFail, c.Queue.OnConnectionLoss))
	}
	if _, err := c.FilterChain(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// FilterChain converts the configured rules into a filter.Chain.
func (c Config) FilterChain() (*filter.Chain, error) {
	rules := make([]filter.Rule, 0, len(c.Filters))
	for _, fr := range c.Filters {
		action, err := filter.ParseAction(fr.Action)
		if err != nil {
			return nil, err
		}
		rules = append(rules, filter.Rule{
			Pattern:   fr.Pattern,
			Action:    action,
			DirsOnly:  fr.DirsOnly,
			FilesOnly: fr.FilesOnly,
			MinSize:   fr.MinSize,
			MaxSize:   fr.MaxSize,
			Priority:  fr.Priority,
		})
	}
	return filter.NewChain(rules...)
}
