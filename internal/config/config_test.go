package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/gossh/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Connect.Port != 22 {
		t.Errorf("Connect.Port = %d, want %d", cfg.Connect.Port, 22)
	}

	if cfg.Connect.Timeout != 30*time.Second {
		t.Errorf("Connect.Timeout = %v, want %v", cfg.Connect.Timeout, 30*time.Second)
	}

	if !cfg.KnownHosts.CheckGlobalKnownHosts {
		t.Error("KnownHosts.CheckGlobalKnownHosts = false, want true")
	}

	if cfg.KnownHosts.GlobalPath != "/etc/ssh/ssh_known_hosts" {
		t.Errorf("KnownHosts.GlobalPath = %q, want %q", cfg.KnownHosts.GlobalPath, "/etc/ssh/ssh_known_hosts")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	// Defaults alone do not pass validation: Connect.Host/User/Auth are
	// deployment-specific and have no sane default.
	cfg.Connect.Host = "example.com"
	cfg.Connect.User = "alice"
	cfg.Auth.PasswordEnvVar = "GOSSH_PASSWORD"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() with host/user/auth set failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
connect:
  host: "bastion.example.com"
  port: 2222
  user: "deploy"
  timeout: "10s"
known_hosts:
  path: "/home/deploy/.ssh/known_hosts"
  check_global: false
auth:
  password_env_var: "DEPLOY_PASSWORD"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Connect.Host != "bastion.example.com" {
		t.Errorf("Connect.Host = %q, want %q", cfg.Connect.Host, "bastion.example.com")
	}

	if cfg.Connect.Port != 2222 {
		t.Errorf("Connect.Port = %d, want %d", cfg.Connect.Port, 2222)
	}

	if cfg.Connect.User != "deploy" {
		t.Errorf("Connect.User = %q, want %q", cfg.Connect.User, "deploy")
	}

	if cfg.Connect.Timeout != 10*time.Second {
		t.Errorf("Connect.Timeout = %v, want %v", cfg.Connect.Timeout, 10*time.Second)
	}

	if cfg.KnownHosts.Path != "/home/deploy/.ssh/known_hosts" {
		t.Errorf("KnownHosts.Path = %q, want %q", cfg.KnownHosts.Path, "/home/deploy/.ssh/known_hosts")
	}

	if cfg.KnownHosts.CheckGlobalKnownHosts {
		t.Error("KnownHosts.CheckGlobalKnownHosts = true, want false")
	}

	if cfg.Auth.PasswordEnvVar != "DEPLOY_PASSWORD" {
		t.Errorf("Auth.PasswordEnvVar = %q, want %q", cfg.Auth.PasswordEnvVar, "DEPLOY_PASSWORD")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override connect.host/user and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
connect:
  host: "10.0.0.5"
  user: "root"
auth:
  password_env_var: "ROOT_PASSWORD"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Connect.Host != "10.0.0.5" {
		t.Errorf("Connect.Host = %q, want %q", cfg.Connect.Host, "10.0.0.5")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Connect.Port != 22 {
		t.Errorf("Connect.Port = %d, want default %d", cfg.Connect.Port, 22)
	}

	if cfg.Connect.Timeout != 30*time.Second {
		t.Errorf("Connect.Timeout = %v, want default %v", cfg.Connect.Timeout, 30*time.Second)
	}

	if !cfg.KnownHosts.CheckGlobalKnownHosts {
		t.Error("KnownHosts.CheckGlobalKnownHosts = false, want default true")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	// validConfig returns a Config that passes Validate(), for tests to
	// mutate one field away from valid.
	validConfig := func() *config.Config {
		cfg := config.DefaultConfig()
		cfg.Connect.Host = "example.com"
		cfg.Connect.User = "alice"
		cfg.Auth.PasswordEnvVar = "GOSSH_PASSWORD"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty host",
			modify: func(cfg *config.Config) {
				cfg.Connect.Host = ""
			},
			wantErr: config.ErrEmptyHost,
		},
		{
			name: "zero port",
			modify: func(cfg *config.Config) {
				cfg.Connect.Port = 0
			},
			wantErr: config.ErrInvalidPort,
		},
		{
			name: "port too large",
			modify: func(cfg *config.Config) {
				cfg.Connect.Port = 70000
			},
			wantErr: config.ErrInvalidPort,
		},
		{
			name: "empty user",
			modify: func(cfg *config.Config) {
				cfg.Connect.User = ""
			},
			wantErr: config.ErrEmptyUser,
		},
		{
			name: "negative timeout",
			modify: func(cfg *config.Config) {
				cfg.Connect.Timeout = -1 * time.Second
			},
			wantErr: config.ErrInvalidTimeout,
		},
		{
			name: "no credential source",
			modify: func(cfg *config.Config) {
				cfg.Auth.PasswordEnvVar = ""
				cfg.Auth.PrivateKeyPath = ""
			},
			wantErr: config.ErrNoCredentialSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePrivateKeyOnlyCredential(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Connect.Host = "example.com"
	cfg.Connect.User = "alice"
	cfg.Auth.PrivateKeyPath = "/home/alice/.ssh/id_ed25519"

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() with private-key-only auth returned error: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadInvalidConfigFailsValidation(t *testing.T) {
	t.Parallel()

	// No user, no auth source: must fail validation even though the YAML
	// itself parses fine.
	yamlContent := `
connect:
  host: "example.com"
`
	path := writeTemp(t, yamlContent)

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("Load() returned nil error for a config missing user/auth")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv via t.Setenv).

	yamlContent := `
connect:
  host: "example.com"
  user: "alice"
auth:
  password_env_var: "GOSSH_PASSWORD"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOSSH_CONNECT_HOST", "override.example.com")
	t.Setenv("GOSSH_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Connect.Host != "override.example.com" {
		t.Errorf("Connect.Host = %q, want %q (from env)", cfg.Connect.Host, "override.example.com")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
connect:
  host: "example.com"
  user: "alice"
auth:
  password_env_var: "GOSSH_PASSWORD"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOSSH_METRICS_ADDR", ":9200")
	t.Setenv("GOSSH_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "gossh.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
