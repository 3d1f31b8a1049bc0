package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig contains local store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig points the device at the remote service.
type RemoteConfig struct {
	URL     string   `yaml:"url"`
	APIKey  string   `yaml:"-"` // env-only, never in YAML
	Timeout Duration `yaml:"timeout"`
}

// SyncConfig contains push/pull settings.
type SyncConfig struct {
	// UserID scopes owner-scoped pulls. Empty pulls every row.
	UserID     string   `yaml:"user_id"`
	PushLimit  int      `yaml:"push_limit"`
	PullLimit  int      `yaml:"pull_limit"`
	MaxRetries int      `yaml:"max_retries"`
	Interval   Duration `yaml:"interval"`
}

// ServerConfig contains reference server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	Backend         string   `yaml:"backend"`
	APIKey          string   `yaml:"-"` // env-only, never in YAML
	PostgresURL     string   `yaml:"-"` // env-only, carries credentials
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Server backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence:
// defaults → YAML file → .env file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("FIELDSYNC_CONFIG_PATH", "config/fieldsync.yaml")
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	if err := loadDotEnv(getEnv("FIELDSYNC_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// File must exist for this function
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/fieldsync.db",
		},
		Remote: RemoteConfig{
			Timeout: Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			PushLimit:  50,
			PullLimit:  100,
			MaxRetries: 5,
			Interval:   Duration(5 * time.Minute),
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			Backend:         BackendMemory,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadDotEnv exports variables from a .env file into the process
// environment. Variables already set win. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parsing env file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FIELDSYNC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Remote
	if v := os.Getenv("FIELDSYNC_REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv("FIELDSYNC_REMOTE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	setDuration("FIELDSYNC_REMOTE_TIMEOUT", &cfg.Remote.Timeout)

	// Sync
	if v := os.Getenv("FIELDSYNC_USER_ID"); v != "" {
		cfg.Sync.UserID = v
	}
	setInt("FIELDSYNC_PUSH_LIMIT", &cfg.Sync.PushLimit)
	setInt("FIELDSYNC_PULL_LIMIT", &cfg.Sync.PullLimit)
	setInt("FIELDSYNC_MAX_RETRIES", &cfg.Sync.MaxRetries)
	setDuration("FIELDSYNC_SYNC_INTERVAL", &cfg.Sync.Interval)

	// Server
	setInt("FIELDSYNC_PORT", &cfg.Server.Port)
	setDuration("FIELDSYNC_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("FIELDSYNC_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("FIELDSYNC_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v := os.Getenv("FIELDSYNC_SERVER_BACKEND"); v != "" {
		cfg.Server.Backend = v
	}
	if v := os.Getenv("FIELDSYNC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FIELDSYNC_POSTGRES_URL"); v != "" {
		cfg.Server.PostgresURL = v
	}

	// Log
	if v := os.Getenv("FIELDSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FIELDSYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FIELDSYNC_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks values every command depends on.
func (c *Config) validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text; got %q", c.Log.Format)
	}
	if c.Sync.PushLimit <= 0 || c.Sync.PullLimit <= 0 {
		return errors.New("sync.push_limit and sync.pull_limit must be positive")
	}
	if c.Sync.MaxRetries <= 0 {
		return errors.New("sync.max_retries must be positive")
	}
	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("remote.timeout must be positive")
	}
	switch c.Server.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("server.backend must be memory or postgres; got %q", c.Server.Backend)
	}
	return nil
}

// RequireRemote checks the settings needed by commands that talk to the
// remote service.
func (c *Config) RequireRemote() error {
	if c.Remote.URL == "" {
		return errors.New("FIELDSYNC_REMOTE_URL is required")
	}
	return nil
}

// RequireServer checks the settings needed by the reference server.
// In dev mode (FIELDSYNC_DEV_MODE=true), API key validation is skipped.
func (c *Config) RequireServer() error {
	if c.Server.Backend == BackendPostgres && c.Server.PostgresURL == "" {
		return errors.New("FIELDSYNC_POSTGRES_URL is required for the postgres backend")
	}
	if os.Getenv("FIELDSYNC_DEV_MODE") == "true" {
		return nil
	}
	if c.Server.APIKey == "" {
		return errors.New("FIELDSYNC_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
