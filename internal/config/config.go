// Package config handles Ember configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for Ember.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Server settings for the realtime connection
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Window tuning for conversation views
	Window WindowConfig `yaml:"window" mapstructure:"window"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global Ember settings.
type GlobalConfig struct {
	// DataDir is where Ember stores its data (default: ~/.local/share/ember).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/ember).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ServerConfig contains realtime connection settings.
type ServerConfig struct {
	// URL is the websocket endpoint.
	URL string `yaml:"url" mapstructure:"url"`

	// Token authenticates the session. Prefer EMBER_SERVER_TOKEN over
	// storing it in the config file.
	Token string `yaml:"token" mapstructure:"token"`

	// DialTimeout bounds the connection handshake.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// WindowConfig tunes conversation window loading.
type WindowConfig struct {
	// InitialLimit is how many messages the first load fetches. Zero sizes
	// it from the viewport.
	InitialLimit int `yaml:"initial_limit" mapstructure:"initial_limit"`

	// BatchLimit is the directional load batch size.
	BatchLimit int `yaml:"batch_limit" mapstructure:"batch_limit"`

	// GrownBatchLimit is the batch size once the window has grown past
	// GrowThreshold messages.
	GrownBatchLimit int `yaml:"grown_batch_limit" mapstructure:"grown_batch_limit"`

	// GrowThreshold is the window size at which batches switch to
	// GrownBatchLimit.
	GrowThreshold int `yaml:"grow_threshold" mapstructure:"grow_threshold"`

	// AroundBudget is the total message budget when recentering on a
	// specific message.
	AroundBudget int `yaml:"around_budget" mapstructure:"around_budget"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, dark, light).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows per-message timestamps in the UI.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`

	// CompactMode uses a more compact layout.
	CompactMode bool `yaml:"compact_mode" mapstructure:"compact_mode"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "ember"),
			ConfigDir: filepath.Join(homeDir, ".config", "ember"),
		},
		Database: DatabaseConfig{
			Path:          "", // Will be set to DataDir/ember.db
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Server: ServerConfig{
			DialTimeout: 10 * time.Second,
		},
		Window: WindowConfig{
			InitialLimit:    0,
			BatchLimit:      100,
			GrownBatchLimit: 200,
			GrowThreshold:   300,
			AroundBudget:    80,
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
			CompactMode:    false,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms cannot be negative")
	}

	if c.Window.BatchLimit < 1 {
		return fmt.Errorf("window.batch_limit must be at least 1")
	}
	if c.Window.GrownBatchLimit < c.Window.BatchLimit {
		return fmt.Errorf("window.grown_batch_limit must be at least window.batch_limit")
	}
	if c.Window.GrowThreshold < 1 {
		return fmt.Errorf("window.grow_threshold must be at least 1")
	}
	if c.Window.AroundBudget < 1 {
		return fmt.Errorf("window.around_budget must be at least 1")
	}

	if c.Server.DialTimeout < 0 {
		return fmt.Errorf("server.dial_timeout cannot be negative")
	}

	switch c.Logging.Format {
	case "", "json", "console":
		// ok
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
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
	return filepath.Join(c.Global.DataDir, "ember.db")
}
