// ABOUTME: Unit tests for options file loading and path resolution
// ABOUTME: Covers defaults, env expansion, duration parsing, validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greenlight.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_AbsentFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q, want 127.0.0.1", cfg.Server.Bind)
	}
	if cfg.Session.TTL != 12*time.Hour {
		t.Errorf("Session.TTL = %v, want 12h", cfg.Session.TTL)
	}
	if cfg.Tunnel.Binary != "cloudflared" {
		t.Errorf("Tunnel.Binary = %q, want cloudflared", cfg.Tunnel.Binary)
	}
}

func TestLoad_ParsesFileAndDurations(t *testing.T) {
	path := writeConfig(t, `
server:
  bind: "0.0.0.0"
logging:
  level: "debug"
  format: "json"
session:
  ttl: "30m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0" {
		t.Errorf("Bind = %q, want 0.0.0.0", cfg.Server.Bind)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("Session.TTL = %v, want 30m", cfg.Session.TTL)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("GREENLIGHT_TEST_BIND", "10.0.0.5")
	path := writeConfig(t, `
server:
  bind: "${GREENLIGHT_TEST_BIND}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Bind != "10.0.0.5" {
		t.Errorf("Bind = %q, want expanded env value", cfg.Server.Bind)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
session:
  ttl: "not-a-duration"
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on an unparseable duration")
	}
}

func TestLoad_EmptyBindRejected(t *testing.T) {
	t.Setenv("GREENLIGHT_TEST_UNSET_BIND", "")
	path := writeConfig(t, `
server:
  bind: "${GREENLIGHT_TEST_UNSET_BIND}"
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() should fail validation on an empty bind")
	}
}

func TestDataDir_EnvOverride(t *testing.T) {
	t.Setenv("GREENLIGHT_DIR", "/tmp/greenlight-test")

	if got := DataDir(); got != "/tmp/greenlight-test" {
		t.Errorf("DataDir() = %q, want env override", got)
	}
	if got := CredentialsPath(); got != filepath.Join("/tmp/greenlight-test", "config.json") {
		t.Errorf("CredentialsPath() = %q", got)
	}
	if got := LedgerPath(); got != filepath.Join("/tmp/greenlight-test", "requests.json") {
		t.Errorf("LedgerPath() = %q", got)
	}
}

func TestFilePath_EnvOverride(t *testing.T) {
	t.Setenv("GREENLIGHT_CONFIG", "/etc/greenlight.yaml")

	if got := FilePath(); got != "/etc/greenlight.yaml" {
		t.Errorf("FilePath() = %q, want env override", got)
	}
}
