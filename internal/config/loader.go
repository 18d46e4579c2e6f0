package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. DMSYNC_REMOTE_BASE_URL.
const EnvPrefix = "DMSYNC"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFile    string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetEnvFile sets an explicit dotenv file. Without one, ./.env is read when present.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)
	cfg.Remote.BaseURL = strings.TrimRight(cfg.Remote.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Logging.File = expandTilde(cfg.Logging.File)
	cfg.Server.DatabasePath = expandTilde(cfg.Server.DatabasePath)
}

// loadEnvFile populates the process environment from a dotenv file.
// Variables already set in the environment win.
func (l *Loader) loadEnvFile() error {
	path := l.envFile
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if l.envFile == "" && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "dmsync"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "dmsync"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Unmarshal only sees env values for keys that are bound explicitly.
	for _, key := range configKeys {
		_ = v.BindEnv(key, envVarName(key))
	}

	v.AutomaticEnv()
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	// Logging
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	// Remote
	v.SetDefault("remote.base_url", cfg.Remote.BaseURL)
	v.SetDefault("remote.token", cfg.Remote.Token)
	v.SetDefault("remote.request_timeout", cfg.Remote.RequestTimeout)
	v.SetDefault("remote.requests_per_second", cfg.Remote.RequestsPerSecond)
	v.SetDefault("remote.burst", cfg.Remote.Burst)

	// Sync
	v.SetDefault("sync.poll_interval", cfg.Sync.PollInterval)
	v.SetDefault("sync.fetch_timeout", cfg.Sync.FetchTimeout)

	// TUI
	v.SetDefault("tui.theme", cfg.TUI.Theme)
	v.SetDefault("tui.show_timestamps", cfg.TUI.ShowTimestamps)

	// Server
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.database_path", cfg.Server.DatabasePath)
	v.SetDefault("server.page_size", cfg.Server.PageSize)

	// Metrics
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// loadConfigFile attempts to load the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key. Values set here override every other source.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}

var configKeys = []string{
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"remote.base_url",
	"remote.token",
	"remote.request_timeout",
	"remote.requests_per_second",
	"remote.burst",
	"sync.poll_interval",
	"sync.fetch_timeout",
	"tui.theme",
	"tui.show_timestamps",
	"server.addr",
	"server.database_path",
	"server.page_size",
	"metrics.addr",
}

// envVarName maps a config key to its environment variable: remote.base_url -> DMSYNC_REMOTE_BASE_URL.
func envVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
