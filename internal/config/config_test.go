package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

var configEnvVars = []string{
	"FIELDSYNC_CONFIG_PATH",
	"FIELDSYNC_ENV_FILE",
	"FIELDSYNC_DB_PATH",
	"FIELDSYNC_REMOTE_URL",
	"FIELDSYNC_REMOTE_API_KEY",
	"FIELDSYNC_REMOTE_TIMEOUT",
	"FIELDSYNC_USER_ID",
	"FIELDSYNC_PUSH_LIMIT",
	"FIELDSYNC_PULL_LIMIT",
	"FIELDSYNC_MAX_RETRIES",
	"FIELDSYNC_SYNC_INTERVAL",
	"FIELDSYNC_PORT",
	"FIELDSYNC_READ_TIMEOUT",
	"FIELDSYNC_WRITE_TIMEOUT",
	"FIELDSYNC_SHUTDOWN_TIMEOUT",
	"FIELDSYNC_SERVER_BACKEND",
	"FIELDSYNC_API_KEY",
	"FIELDSYNC_POSTGRES_URL",
	"FIELDSYNC_LOG_LEVEL",
	"FIELDSYNC_LOG_FORMAT",
	"FIELDSYNC_LOG_FILE",
	"FIELDSYNC_DEV_MODE",
}

// clearEnv unsets every config env var for the test and restores them after.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	// Point at files that do not exist so the working directory never leaks in.
	dir := t.TempDir()
	t.Setenv("FIELDSYNC_CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("FIELDSYNC_ENV_FILE", filepath.Join(dir, "missing.env"))
}

// dur converts Duration to time.Duration for comparison
func dur(d Duration) time.Duration {
	return time.Duration(d)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "data/fieldsync.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if dur(cfg.Remote.Timeout) != 30*time.Second {
		t.Errorf("Remote.Timeout = %v, want 30s", dur(cfg.Remote.Timeout))
	}
	if cfg.Sync.PushLimit != 50 || cfg.Sync.PullLimit != 100 || cfg.Sync.MaxRetries != 5 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if dur(cfg.Sync.Interval) != 5*time.Minute {
		t.Errorf("Sync.Interval = %v, want 5m", dur(cfg.Sync.Interval))
	}
	if cfg.Server.Port != 8080 || cfg.Server.Backend != BackendMemory {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" || cfg.Log.File != "" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIELDSYNC_DB_PATH", "/tmp/device.db")
	t.Setenv("FIELDSYNC_REMOTE_URL", "https://sync.example.com")
	t.Setenv("FIELDSYNC_REMOTE_API_KEY", "device-key")
	t.Setenv("FIELDSYNC_REMOTE_TIMEOUT", "5s")
	t.Setenv("FIELDSYNC_USER_ID", "u1")
	t.Setenv("FIELDSYNC_PUSH_LIMIT", "10")
	t.Setenv("FIELDSYNC_PULL_LIMIT", "20")
	t.Setenv("FIELDSYNC_MAX_RETRIES", "3")
	t.Setenv("FIELDSYNC_SYNC_INTERVAL", "30s")
	t.Setenv("FIELDSYNC_PORT", "9090")
	t.Setenv("FIELDSYNC_SERVER_BACKEND", "postgres")
	t.Setenv("FIELDSYNC_POSTGRES_URL", "postgres://localhost/fieldsync")
	t.Setenv("FIELDSYNC_API_KEY", "server-key")
	t.Setenv("FIELDSYNC_LOG_LEVEL", "debug")
	t.Setenv("FIELDSYNC_LOG_FORMAT", "text")
	t.Setenv("FIELDSYNC_LOG_FILE", "/tmp/fieldsync.log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/device.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Remote.URL != "https://sync.example.com" || cfg.Remote.APIKey != "device-key" || dur(cfg.Remote.Timeout) != 5*time.Second {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Sync.UserID != "u1" || cfg.Sync.PushLimit != 10 || cfg.Sync.PullLimit != 20 || cfg.Sync.MaxRetries != 3 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if dur(cfg.Sync.Interval) != 30*time.Second {
		t.Errorf("Sync.Interval = %v", dur(cfg.Sync.Interval))
	}
	if cfg.Server.Port != 9090 || cfg.Server.Backend != BackendPostgres || cfg.Server.APIKey != "server-key" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" || cfg.Log.File != "/tmp/fieldsync.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_InvalidEnvNumberIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIELDSYNC_PUSH_LIMIT", "many")
	t.Setenv("FIELDSYNC_SYNC_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.PushLimit != 50 || dur(cfg.Sync.Interval) != 5*time.Minute {
		t.Errorf("Sync = %+v, want defaults", cfg.Sync)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// Given: A YAML file and one env override
	clearEnv(t)
	path := writeFile(t, "fieldsync.yaml", `
database:
  path: /var/lib/fieldsync/device.db
remote:
  url: https://yaml.example.com
  timeout: 10s
sync:
  user_id: u-yaml
  interval: 1m
log:
  level: warn
`)
	t.Setenv("FIELDSYNC_CONFIG_PATH", path)
	t.Setenv("FIELDSYNC_REMOTE_URL", "https://env.example.com")

	// When: Config is loaded
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Then: YAML values apply and env wins where set
	if cfg.Database.Path != "/var/lib/fieldsync/device.db" || cfg.Sync.UserID != "u-yaml" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Remote.URL != "https://env.example.com" {
		t.Errorf("Remote.URL = %q, want env value", cfg.Remote.URL)
	}
	if dur(cfg.Remote.Timeout) != 10*time.Second || dur(cfg.Sync.Interval) != time.Minute {
		t.Errorf("durations = %v, %v", dur(cfg.Remote.Timeout), dur(cfg.Sync.Interval))
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	// Given: A .env file and a conflicting process env var
	clearEnv(t)
	envPath := writeFile(t, ".env", "FIELDSYNC_REMOTE_URL=https://dotenv.example.com\nFIELDSYNC_USER_ID=u-dotenv\n")
	t.Setenv("FIELDSYNC_ENV_FILE", envPath)
	t.Setenv("FIELDSYNC_USER_ID", "u-process")
	t.Cleanup(func() { os.Unsetenv("FIELDSYNC_REMOTE_URL") })

	// When: Config is loaded
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Then: The file fills gaps and never overrides the process env
	if cfg.Remote.URL != "https://dotenv.example.com" {
		t.Errorf("Remote.URL = %q, want value from .env", cfg.Remote.URL)
	}
	if cfg.Sync.UserID != "u-process" {
		t.Errorf("Sync.UserID = %q, want process value", cfg.Sync.UserID)
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bad.yaml", "sync: [unterminated")

	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bad.yaml", "sync:\n  interval: often\n")

	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("err = %v, want duration error", err)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad_level", "FIELDSYNC_LOG_LEVEL", "verbose"},
		{"bad_format", "FIELDSYNC_LOG_FORMAT", "xml"},
		{"zero_push_limit", "FIELDSYNC_PUSH_LIMIT", "0"},
		{"negative_retries", "FIELDSYNC_MAX_RETRIES", "-1"},
		{"zero_interval", "FIELDSYNC_SYNC_INTERVAL", "0s"},
		{"bad_backend", "FIELDSYNC_SERVER_BACKEND", "redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s succeeded, want error", tt.key, tt.val)
			}
		})
	}
}

func TestConfig_RequireRemote(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.RequireRemote(); err == nil {
		t.Error("RequireRemote() = nil without URL, want error")
	}
	cfg.Remote.URL = "http://localhost:8080"
	if err := cfg.RequireRemote(); err != nil {
		t.Errorf("RequireRemote() = %v, want nil", err)
	}
}

func TestConfig_RequireServer(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load()

	if err := cfg.RequireServer(); err == nil {
		t.Error("RequireServer() without API key = nil, want error")
	}

	t.Setenv("FIELDSYNC_DEV_MODE", "true")
	if err := cfg.RequireServer(); err != nil {
		t.Errorf("RequireServer() in dev mode = %v, want nil", err)
	}

	cfg.Server.Backend = BackendPostgres
	if err := cfg.RequireServer(); err == nil {
		t.Error("RequireServer() for postgres without URL = nil, want error")
	}
}

func TestConfig_SecretsNotInYAML(t *testing.T) {
	cfg := newDefaults()
	cfg.Remote.APIKey = "device-secret"
	cfg.Server.APIKey = "server-secret"
	cfg.Server.PostgresURL = "postgres://user:pw@db/fieldsync"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal error = %v", err)
	}
	for _, secret := range []string{"device-secret", "server-secret", "user:pw"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("YAML output contains secret %q", secret)
		}
	}
	if !strings.Contains(string(data), "interval: 5m0s") {
		t.Errorf("Duration not marshalled as string:\n%s", data)
	}
}
