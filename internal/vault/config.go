package vault

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codeaudit/corda/internal/notify"
)

// Config is the on-disk vault configuration.
//
//	database: vault.db
//	queue_capacity: 1024
//	log_level: info
//	metrics: true
type Config struct {
	// Database is the SQLite path. Empty keeps the vault in memory only.
	Database string `yaml:"database"`

	// QueueCapacity bounds each observer's pending updates.
	// Zero selects notify.DefaultCapacity.
	QueueCapacity int `yaml:"queue_capacity,omitempty"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level,omitempty"`

	// Metrics gives the vault its own Prometheus registry, readable
	// through Vault.Gatherer.
	Metrics bool `yaml:"metrics,omitempty"`
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{QueueCapacity: notify.DefaultCapacity, LogLevel: "info"}
}

// LoadConfig reads a YAML config file. Unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative, got %d", c.QueueCapacity)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log_level %q", c.LogLevel)
}
