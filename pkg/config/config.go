// Package config provides configuration loading and management for focusstack.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"focusstack/pkg/compositor"
)

// ConfigError reports an invalid argument or configuration value. It is
// raised before any worker starts.
type ConfigError struct {
	// Field names the offending setting or argument
	Field string

	Err error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Compositing parameters
	Compositing struct {
		// NumWorkers is the number of concurrent compositing workers
		NumWorkers int `yaml:"numWorkers"`

		// Mode is the work assignment policy: "static" or "random"
		Mode string `yaml:"mode"`

		// WindowSize is the odd side length of the sharpness window
		WindowSize int `yaml:"windowSize"`

		// Seed initialises the random-sampling workers; 0 picks one from the clock
		Seed uint64 `yaml:"seed"`
	} `yaml:"compositing"`

	// Region locking parameters
	Locking struct {
		// GridRows and GridCols size the lock grid of the random mode
		GridRows int `yaml:"gridRows"`
		GridCols int `yaml:"gridCols"`

		// AcquireTimeout bounds one lock acquisition; 0 waits forever
		AcquireTimeout time.Duration `yaml:"acquireTimeout"`
	} `yaml:"locking"`

	// Random-sampling parameters
	Sampling struct {
		// Scope is where window centres are drawn: "image" or "band"
		Scope string `yaml:"scope"`

		// Duration stops a random-sampling run automatically; 0 runs until interrupted
		Duration time.Duration `yaml:"duration"`
	} `yaml:"sampling"`

	// Preview parameters
	Preview struct {
		// Dir receives preview frames; empty disables the preview
		Dir string `yaml:"dir"`

		// Interval is the time between two frames
		Interval time.Duration `yaml:"interval"`

		// MaxWidth down-scales frames wider than this many pixels
		MaxWidth int `yaml:"maxWidth"`
	} `yaml:"preview"`

	// Output parameters
	Output struct {
		// Checkpoint is written on shutdown when set
		Checkpoint string `yaml:"checkpoint"`

		// Resume starts from Checkpoint when it exists
		Resume bool `yaml:"resume"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default compositing parameters
	cfg.Compositing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Compositing.Mode = string(compositor.PolicyRandom)
	cfg.Compositing.WindowSize = 11

	// Set default locking parameters
	cfg.Locking.GridRows = 4
	cfg.Locking.GridCols = 4

	// Set default sampling parameters
	cfg.Sampling.Scope = string(compositor.ScopeImage)

	// Set default preview parameters
	cfg.Preview.Interval = time.Second
	cfg.Preview.MaxWidth = 800

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Field: configPath, Err: err}
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks every setting and reports the first invalid one
func (c *Config) Validate() error {
	if c.Preview.Dir != "" {
		if c.Preview.Interval <= 0 {
			return &ConfigError{Field: "preview.interval", Err: fmt.Errorf("must be positive, got %s", c.Preview.Interval)}
		}
		if c.Preview.MaxWidth < 1 {
			return &ConfigError{Field: "preview.maxWidth", Err: fmt.Errorf("must be positive, got %d", c.Preview.MaxWidth)}
		}
	}
	if c.Sampling.Duration < 0 {
		return &ConfigError{Field: "sampling.duration", Err: fmt.Errorf("must not be negative")}
	}
	if c.Output.Resume && c.Output.Checkpoint == "" {
		return &ConfigError{Field: "output.resume", Err: fmt.Errorf("requires a checkpoint path")}
	}

	if err := c.Params().Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// Params converts the configuration into compositing parameters. The
// logger, seed fallback and initial image are left to the caller.
func (c *Config) Params() *compositor.Params {
	return &compositor.Params{
		NumWorkers:  c.Compositing.NumWorkers,
		Policy:      compositor.Policy(c.Compositing.Mode),
		WindowSize:  c.Compositing.WindowSize,
		GridRows:    c.Locking.GridRows,
		GridCols:    c.Locking.GridCols,
		Scope:       compositor.Scope(c.Sampling.Scope),
		Seed:        c.Compositing.Seed,
		LockTimeout: c.Locking.AcquireTimeout,
	}
}
