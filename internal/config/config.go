// Package config manages the gosshctl demo CLI's configuration using
// koanf/v2.
//
// Supports YAML files, environment variables, and CLI flags. Only the demo
// CLI reads this package; the core sshclient/kex/userauth/knownhosts
// packages take typed Go options directly and never depend on config.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gosshctl configuration.
type Config struct {
	Connect    ConnectConfig    `koanf:"connect"`
	KnownHosts KnownHostsConfig `koanf:"known_hosts"`
	Auth       AuthConfig       `koanf:"auth"`
	Algorithms AlgorithmsConfig `koanf:"algorithms"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
}

// ConnectConfig holds the target host and dial-level settings
// (SPEC_FULL.md Section 3, "Connection settings").
type ConnectConfig struct {
	// Host is the SSH server's hostname or IP address.
	Host string `koanf:"host"`
	// Port is the SSH server's TCP port.
	Port int `koanf:"port"`
	// User is the username to authenticate as.
	User string `koanf:"user"`
	// Timeout bounds the whole Connect call (dial through Ready).
	Timeout time.Duration `koanf:"timeout"`
	// ProxyURL, when set, is a socks5://host:port URL to dial through.
	ProxyURL string `koanf:"proxy_url"`
}

// KnownHostsConfig holds the host-key trust store settings
// (SPEC_FULL.md Section 4.F).
type KnownHostsConfig struct {
	// Path is the user known_hosts file (e.g. ~/.ssh/known_hosts).
	Path string `koanf:"path"`
	// CheckGlobalKnownHosts also consults GlobalPath.
	CheckGlobalKnownHosts bool `koanf:"check_global"`
	// GlobalPath is the system-wide known_hosts file, consulted only
	// when CheckGlobalKnownHosts is set.
	GlobalPath string `koanf:"global_path"`
}

// AuthConfig holds credential sourcing for the demo CLI. Secrets
// themselves never live in the config file: a password is read from the
// named environment variable at connect time, and a private key is read
// from disk, matching the teacher's practice of keeping secret material
// out of YAML (SPEC_FULL.md Section 3, "Connection settings").
type AuthConfig struct {
	// PasswordEnvVar names an environment variable holding the password
	// credential. Empty means password authentication is not attempted.
	PasswordEnvVar string `koanf:"password_env_var"`
	// PrivateKeyPath is a path to a private key file for publickey
	// authentication. Empty means publickey authentication is not
	// attempted.
	PrivateKeyPath string `koanf:"private_key_path"`
	// PrivateKeyPassphraseEnvVar names an environment variable for a
	// private key passphrase. It is loaded but never read by gosshctl:
	// userauth.LoadPrivateKeySigner rejects encrypted keys.
	PrivateKeyPassphraseEnvVar string `koanf:"private_key_passphrase_env_var"`
}

// AlgorithmsConfig holds algorithm preference overrides
// (SPEC_FULL.md Section 4.E). A nil/empty list falls back to the
// internal/kex package defaults.
type AlgorithmsConfig struct {
	Kex     []string `koanf:"kex"`
	HostKey []string `koanf:"host_key"`
	Ciphers []string `koanf:"ciphers"`
	MACs    []string `koanf:"macs"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Connect: ConnectConfig{
			Port:    22,
			Timeout: 30 * time.Second,
		},
		KnownHosts: KnownHostsConfig{
			CheckGlobalKnownHosts: true,
			GlobalPath:            "/etc/ssh/ssh_known_hosts",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gosshctl configuration.
// Variables are named GOSSH_<section>_<key>, e.g., GOSSH_CONNECT_HOST.
const envPrefix = "GOSSH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOSSH_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOSSH_CONNECT_HOST     -> connect.host
//	GOSSH_CONNECT_PORT     -> connect.port
//	GOSSH_CONNECT_USER     -> connect.user
//	GOSSH_KNOWN_HOSTS_PATH -> known_hosts.path
//	GOSSH_LOG_LEVEL        -> log.level
//	GOSSH_LOG_FORMAT       -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOSSH_CONNECT_HOST -> connect.host.
// Strips the GOSSH_ prefix, lowercases, and replaces the _ that ends the
// section name with . ("known_hosts" is the one section whose name itself
// contains _); later underscores stay, so GOSSH_AUTH_PASSWORD_ENV_VAR maps
// to auth.password_env_var.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	if rest, ok := strings.CutPrefix(s, "known_hosts_"); ok {
		return "known_hosts." + rest
	}
	section, key, _ := strings.Cut(s, "_")
	return section + "." + key
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"connect.port":              defaults.Connect.Port,
		"connect.timeout":           defaults.Connect.Timeout.String(),
		"known_hosts.check_global":  defaults.KnownHosts.CheckGlobalKnownHosts,
		"known_hosts.global_path":   defaults.KnownHosts.GlobalPath,
		"metrics.addr":              defaults.Metrics.Addr,
		"metrics.path":              defaults.Metrics.Path,
		"log.level":                 defaults.Log.Level,
		"log.format":                defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyHost indicates the target host is empty.
	ErrEmptyHost = errors.New("connect.host must not be empty")

	// ErrInvalidPort indicates the target port is out of range.
	ErrInvalidPort = errors.New("connect.port must be between 1 and 65535")

	// ErrEmptyUser indicates the username is empty.
	ErrEmptyUser = errors.New("connect.user must not be empty")

	// ErrInvalidTimeout indicates the connect timeout is negative.
	ErrInvalidTimeout = errors.New("connect.timeout must be >= 0")

	// ErrNoCredentialSource indicates neither a password env var nor a
	// private key path was configured.
	ErrNoCredentialSource = errors.New("auth: one of password_env_var or private_key_path must be set")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Connect.Host == "" {
		return ErrEmptyHost
	}

	if cfg.Connect.Port < 1 || cfg.Connect.Port > 65535 {
		return ErrInvalidPort
	}

	if cfg.Connect.User == "" {
		return ErrEmptyUser
	}

	if cfg.Connect.Timeout < 0 {
		return ErrInvalidTimeout
	}

	if cfg.Auth.PasswordEnvVar == "" && cfg.Auth.PrivateKeyPath == "" {
		return ErrNoCredentialSource
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
