package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
transport:
  socket_path: "/run/relay/relay.sock"
  send_window: 8

admin:
  listen_address: "0.0.0.0:9191"
  read_timeout: "5s"

network_usage:
  policy_file: "/etc/relay/policy.yaml"
  sqlite:
    path: "/var/lib/relay/usage.db"
    driver: "sqlite3"
  retention:
    days: 7

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Transport.SocketPath != "/run/relay/relay.sock" {
		t.Errorf("expected socket path %q, got %q", "/run/relay/relay.sock", cfg.Transport.SocketPath)
	}
	if cfg.Transport.SendWindow != 8 {
		t.Errorf("expected send window 8, got %d", cfg.Transport.SendWindow)
	}
	if cfg.Admin.ListenAddress != "0.0.0.0:9191" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9191", cfg.Admin.ListenAddress)
	}
	if cfg.Admin.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", cfg.Admin.ReadTimeout)
	}
	if cfg.NetworkUsage.SQLite.Driver != "sqlite3" {
		t.Errorf("expected driver sqlite3, got %q", cfg.NetworkUsage.SQLite.Driver)
	}
	if cfg.NetworkUsage.Retention.Days != 7 {
		t.Errorf("expected retention days 7, got %d", cfg.NetworkUsage.Retention.Days)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level debug, got %q", cfg.Telemetry.Logging.Level)
	}

	// Fields absent from the file keep their defaults.
	if cfg.Transport.MaxFrameBytes != DefaultMaxFrameBytes {
		t.Errorf("expected max frame bytes %d, got %d", DefaultMaxFrameBytes, cfg.Transport.MaxFrameBytes)
	}
	if !cfg.NetworkUsage.Enabled {
		t.Error("expected network usage to stay enabled by default")
	}
	if !cfg.NetworkUsage.SQLite.WALMode {
		t.Error("expected WAL mode to stay enabled by default")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics to stay enabled by default")
	}
}

func TestLoadConfig_ExplicitFalseIsKept(t *testing.T) {
	path := writeConfig(t, `
network_usage:
  enabled: false
telemetry:
  logging:
    redact_urls: false
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.NetworkUsage.Enabled {
		t.Error("expected network usage disabled")
	}
	if cfg.Telemetry.Logging.RedactURLs {
		t.Error("expected URL redaction disabled")
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics disabled")
	}
}

func TestLoadConfig_ZeroRetentionKeepsForever(t *testing.T) {
	path := writeConfig(t, `
network_usage:
  retention:
    days: 0
    prune_schedule: "not a schedule"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.NetworkUsage.Retention.Days != 0 {
		t.Errorf("expected retention days 0, got %d", cfg.NetworkUsage.Retention.Days)
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Transport.SocketPath != DefaultSocketPath {
		t.Errorf("expected default socket path, got %q", cfg.Transport.SocketPath)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "transport: [unclosed")

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadConfig_UnknownField(t *testing.T) {
	path := writeConfig(t, `
transport:
  socket_pth: "/tmp/typo.sock"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
telemetry:
  logging:
    level: "verbose"
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError in chain, got %T", err)
	}
	if verr.Errors[0].Field != "telemetry.logging.level" {
		t.Errorf("expected field telemetry.logging.level, got %q", verr.Errors[0].Field)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
transport:
  socket_path: "/from/file.sock"
admin:
  listen_address: "127.0.0.1:9090"
`)

	t.Setenv("RELAY_TRANSPORT_SOCKET_PATH", "/from/env.sock")
	t.Setenv("RELAY_ADMIN_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("RELAY_NETWORK_USAGE_ENABLED", "false")
	t.Setenv("RELAY_RELAY_WORKERS", "4")
	t.Setenv("RELAY_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}

	if cfg.Transport.SocketPath != "/from/env.sock" {
		t.Errorf("expected env socket path, got %q", cfg.Transport.SocketPath)
	}
	if cfg.Admin.ShutdownTimeout != 3*time.Second {
		t.Errorf("expected shutdown timeout 3s, got %v", cfg.Admin.ShutdownTimeout)
	}
	if cfg.NetworkUsage.Enabled {
		t.Error("expected network usage disabled by env")
	}
	if cfg.Relay.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Relay.Workers)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("RELAY_ADMIN_LISTEN_ADDRESS", "127.0.0.1:0")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}
	if cfg.Admin.ListenAddress != "127.0.0.1:0" {
		t.Errorf("expected env listen address, got %q", cfg.Admin.ListenAddress)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("RELAY_TRANSPORT_SEND_WINDOW", "many")
	t.Setenv("RELAY_ADMIN_READ_TIMEOUT", "soon")
	t.Setenv("RELAY_FLAGS_WATCH", "maybe")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}
	if cfg.Transport.SendWindow != DefaultSendWindow {
		t.Errorf("expected default send window, got %d", cfg.Transport.SendWindow)
	}
	if cfg.Admin.ReadTimeout != DefaultAdminReadTimeout {
		t.Errorf("expected default read timeout, got %v", cfg.Admin.ReadTimeout)
	}
	if !cfg.Flags.Watch {
		t.Error("expected default watch")
	}
}

func TestLoadConfigWithEnvOverrides_InvalidOverrideFailsValidation(t *testing.T) {
	t.Setenv("RELAY_NETWORK_USAGE_BACKEND", "postgres")

	if _, err := LoadConfigWithEnvOverrides(""); err == nil {
		t.Fatal("expected validation error for unsupported backend")
	}
}
