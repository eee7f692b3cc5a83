// ABOUTME: Process options loading for greenlight
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds process-level options: everything the durable credential
// document does not own. The file is optional; defaults cover a local
// single-operator deployment.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Session SessionConfig `yaml:"session"`
	Tunnel  TunnelConfig  `yaml:"tunnel"`
}

// ServerConfig holds listener options. The port lives in the credential
// document; only the bind host is a process option.
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// LoggingConfig holds logging options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionConfig holds operator session options.
type SessionConfig struct {
	TTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// TunnelConfig holds tunnel collaborator options.
type TunnelConfig struct {
	// Binary is the tunnel executable to launch (default "cloudflared").
	Binary string `yaml:"binary"`
}

// Default returns the configuration used when no options file exists.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Bind: "127.0.0.1"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Session: SessionConfig{TTL: 12 * time.Hour},
		Tunnel:  TunnelConfig{Binary: "cloudflared"},
	}
}

// Load reads the options file at path. An absent file yields the defaults;
// any other read failure propagates. Environment variables in the format
// ${VAR_NAME} are expanded and duration strings are parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all option fields are usable.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return fmt.Errorf("server.bind must not be empty")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Tunnel.Binary == "" {
		return fmt.Errorf("tunnel.binary must not be empty")
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Session.TTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Session.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session.ttl %q: %w", cfg.Session.TTLRaw, err)
		}
		cfg.Session.TTL = ttl
	}
	return nil
}

// FilePath returns the path to the options file.
// Priority: GREENLIGHT_CONFIG env var > XDG_CONFIG_HOME/greenlight/greenlight.yaml > ~/.config/greenlight/greenlight.yaml
func FilePath() string {
	if envPath := os.Getenv("GREENLIGHT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "greenlight.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "greenlight", "greenlight.yaml")
}

// DataDir returns the directory holding the two durable JSON documents.
// Priority: GREENLIGHT_DIR env var > XDG_DATA_HOME/greenlight > ~/.local/share/greenlight
func DataDir() string {
	if envDir := os.Getenv("GREENLIGHT_DIR"); envDir != "" {
		return envDir
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "greenlight")
}

// CredentialsPath returns the credential/config document path.
func CredentialsPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// LedgerPath returns the approval request ledger document path.
func LedgerPath() string {
	return filepath.Join(DataDir(), "requests.json")
}
