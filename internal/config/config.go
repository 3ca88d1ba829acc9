// Package config handles fedistream configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Streaming StreamingConfig `yaml:"streaming" mapstructure:"streaming"`
	Timeline  TimelineConfig  `yaml:"timeline" mapstructure:"timeline"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where the account database lives (default: ~/.local/share/fedistream).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir holds config.yaml and context.yaml (default: ~/.config/fedistream).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeoutMs is how long to wait for a locked database.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level        string `yaml:"level" mapstructure:"level"`
	Format       string `yaml:"format" mapstructure:"format"`
	EnableCaller bool   `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// StreamingConfig controls channel binding and the websocket transport.
type StreamingConfig struct {
	// RebindInterval is the poll interval while waiting for a previous
	// binding to release.
	RebindInterval time.Duration `yaml:"rebind_interval" mapstructure:"rebind_interval"`

	// RebindMaxAttempts bounds the release wait.
	RebindMaxAttempts int `yaml:"rebind_max_attempts" mapstructure:"rebind_max_attempts"`

	// QueueSize is the fanout queue capacity.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`

	// ReconnectInterval is the first websocket reconnect delay.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`

	// ReconnectMax caps the reconnect backoff.
	ReconnectMax time.Duration `yaml:"reconnect_max" mapstructure:"reconnect_max"`
}

// TimelineConfig controls the per-view buffers.
type TimelineConfig struct {
	// Capacity is the soft entry limit per view.
	Capacity int `yaml:"capacity" mapstructure:"capacity"`

	// TrimProbability is the chance an append trims overflow.
	TrimProbability float64 `yaml:"trim_probability" mapstructure:"trim_probability"`

	// TrimSlack is the overflow that forces a trim regardless of chance.
	TrimSlack int `yaml:"trim_slack" mapstructure:"trim_slack"`

	// BackfillLimit is how many entries to fetch per view on activation.
	BackfillLimit int `yaml:"backfill_limit" mapstructure:"backfill_limit"`
}

// HTTPConfig controls the REST client.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "fedistream"),
			ConfigDir: filepath.Join(homeDir, ".config", "fedistream"),
		},
		Database: DatabaseConfig{
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Streaming: StreamingConfig{
			RebindInterval:    500 * time.Millisecond,
			RebindMaxAttempts: 20,
			QueueSize:         256,
			ReconnectInterval: 2 * time.Second,
			ReconnectMax:      time.Minute,
		},
		Timeline: TimelineConfig{
			Capacity:        40,
			TrimProbability: 0.2,
			TrimSlack:       20,
			BackfillLimit:   40,
		},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Streaming.RebindInterval < 10*time.Millisecond {
		return fmt.Errorf("streaming.rebind_interval must be at least 10ms")
	}
	if c.Streaming.RebindMaxAttempts < 1 {
		return fmt.Errorf("streaming.rebind_max_attempts must be at least 1")
	}
	if c.Streaming.QueueSize < 1 {
		return fmt.Errorf("streaming.queue_size must be at least 1")
	}
	if c.Streaming.ReconnectMax < c.Streaming.ReconnectInterval {
		return fmt.Errorf("streaming.reconnect_max must not be below streaming.reconnect_interval")
	}
	if c.Timeline.Capacity < 1 {
		return fmt.Errorf("timeline.capacity must be at least 1")
	}
	if c.Timeline.TrimProbability <= 0 || c.Timeline.TrimProbability > 1 {
		return fmt.Errorf("timeline.trim_probability must be in (0, 1]")
	}
	if c.Timeline.TrimSlack < 0 {
		return fmt.Errorf("timeline.trim_slack must not be negative")
	}
	if c.HTTP.RequestsPerSecond <= 0 {
		return fmt.Errorf("http.requests_per_second must be positive")
	}
	if c.HTTP.Burst < 1 {
		return fmt.Errorf("http.burst must be at least 1")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "fedistream.db")
}

// ContextPath returns the path of the selected-account context file.
func (c *Config) ContextPath() string {
	return filepath.Join(c.Global.ConfigDir, "context.yaml")
}
