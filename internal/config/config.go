// Package config handles dmsync configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Lower bounds enforced by Validate.
const (
	MinPollInterval  = 1 * time.Second
	MinFetchTimeout  = 100 * time.Millisecond
	MaxServerPageLen = 200
)

// Config is the root configuration structure for dmsync.
type Config struct {
	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Conversation service client settings
	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`

	// Thread synchronization settings
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`

	// Development service settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Metrics endpoint settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
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

// RemoteConfig describes how to reach the conversation service.
type RemoteConfig struct {
	// BaseURL is the service root, e.g. http://localhost:8000.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token" mapstructure:"token"`

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// RequestsPerSecond caps outgoing requests. Zero disables the limit.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst is the limiter bucket size.
	Burst int `yaml:"burst" mapstructure:"burst"`
}

// SyncConfig contains poller and pager settings.
type SyncConfig struct {
	// PollInterval is the period between forward polls.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// FetchTimeout bounds a single newer or older fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows relative times above each message.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// ServerConfig configures `dmsync serve`.
type ServerConfig struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`
	PageSize     int    `yaml:"page_size" mapstructure:"page_size"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Remote: RemoteConfig{
			BaseURL:           "http://localhost:8000",
			RequestTimeout:    15 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Sync: SyncConfig{
			PollInterval: 10 * time.Second,
			FetchTimeout: 10 * time.Second,
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			DatabasePath: filepath.Join(homeDir, ".local", "share", "dmsync", "dev.db"),
			PageSize:     20,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}

	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.base_url must use http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("remote.base_url must include a host")
	}
	if c.Remote.RequestTimeout <= 0 {
		return fmt.Errorf("remote.request_timeout must be positive")
	}
	if c.Remote.RequestsPerSecond < 0 {
		return fmt.Errorf("remote.requests_per_second must be non-negative")
	}
	if c.Remote.RequestsPerSecond > 0 && c.Remote.Burst < 1 {
		return fmt.Errorf("remote.burst must be at least 1 when a rate limit is set")
	}

	if c.Sync.PollInterval < MinPollInterval {
		return fmt.Errorf("sync.poll_interval must be at least %s", MinPollInterval)
	}
	if c.Sync.FetchTimeout < MinFetchTimeout {
		return fmt.Errorf("sync.fetch_timeout must be at least %s", MinFetchTimeout)
	}

	switch c.TUI.Theme {
	case "default", "high-contrast":
	default:
		return fmt.Errorf("tui.theme must be default or high-contrast (got %q)", c.TUI.Theme)
	}

	if c.Server.PageSize < 1 || c.Server.PageSize > MaxServerPageLen {
		return fmt.Errorf("server.page_size must be between 1 and %d", MaxServerPageLen)
	}

	return nil
}

// EnsureDirectories creates the directory holding the development database.
func (c *Config) EnsureDirectories() error {
	if c.Server.DatabasePath == "" || c.Server.DatabasePath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(c.Server.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
