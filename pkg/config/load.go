package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "RELAY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Fields absent from the file keep their defaults. The result is validated
// but not modified by environment variables; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and applies defaults to anything
// left empty. Unknown keys are rejected. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_ADMIN_LISTEN_ADDRESS) and
// always take precedence over the file. An empty path skips the file and
// starts from defaults.
//
// The loading sequence is:
// 1. Load YAML from file over defaults
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	env := func(name string) string { return getenv(EnvPrefix + name) }

	// Transport overrides
	setString(&cfg.Transport.SocketPath, env("TRANSPORT_SOCKET_PATH"))
	setInt(&cfg.Transport.SendWindow, env("TRANSPORT_SEND_WINDOW"))
	setInt(&cfg.Transport.MaxFrameBytes, env("TRANSPORT_MAX_FRAME_BYTES"))
	setDuration(&cfg.Transport.ShutdownTimeout, env("TRANSPORT_SHUTDOWN_TIMEOUT"))

	// Admin overrides
	setBool(&cfg.Admin.Enabled, env("ADMIN_ENABLED"))
	setString(&cfg.Admin.ListenAddress, env("ADMIN_LISTEN_ADDRESS"))
	setDuration(&cfg.Admin.ReadTimeout, env("ADMIN_READ_TIMEOUT"))
	setDuration(&cfg.Admin.WriteTimeout, env("ADMIN_WRITE_TIMEOUT"))
	setDuration(&cfg.Admin.IdleTimeout, env("ADMIN_IDLE_TIMEOUT"))
	setDuration(&cfg.Admin.ShutdownTimeout, env("ADMIN_SHUTDOWN_TIMEOUT"))

	// Relay overrides
	setInt(&cfg.Relay.Workers, env("RELAY_WORKERS"))
	setString(&cfg.Relay.TLS.CAFile, env("RELAY_TLS_CA_FILE"))
	setString(&cfg.Relay.TLS.MinVersion, env("RELAY_TLS_MIN_VERSION"))
	setString(&cfg.Relay.TLS.CertFile, env("RELAY_TLS_CERT_FILE"))
	setString(&cfg.Relay.TLS.KeyFile, env("RELAY_TLS_KEY_FILE"))

	// Flags overrides
	setString(&cfg.Flags.File, env("FLAGS_FILE"))
	setBool(&cfg.Flags.Watch, env("FLAGS_WATCH"))
	setDuration(&cfg.Flags.DebounceInterval, env("FLAGS_DEBOUNCE_INTERVAL"))

	// Network usage overrides
	nu := &cfg.NetworkUsage
	setBool(&nu.Enabled, env("NETWORK_USAGE_ENABLED"))
	setString(&nu.PolicyFile, env("NETWORK_USAGE_POLICY_FILE"))
	setString(&nu.Backend, env("NETWORK_USAGE_BACKEND"))
	setString(&nu.SQLite.Path, env("NETWORK_USAGE_SQLITE_PATH"))
	setString(&nu.SQLite.Driver, env("NETWORK_USAGE_SQLITE_DRIVER"))
	setBool(&nu.SQLite.WALMode, env("NETWORK_USAGE_SQLITE_WAL_MODE"))
	setInt(&nu.Recorder.AsyncBuffer, env("NETWORK_USAGE_RECORDER_ASYNC_BUFFER"))
	setInt(&nu.Retention.Days, env("NETWORK_USAGE_RETENTION_DAYS"))
	setString(&nu.Retention.PruneSchedule, env("NETWORK_USAGE_RETENTION_PRUNE_SCHEDULE"))
	setInt(&nu.LookupCache.Size, env("NETWORK_USAGE_LOOKUP_CACHE_SIZE"))
	setDuration(&nu.LookupCache.TTL, env("NETWORK_USAGE_LOOKUP_CACHE_TTL"))

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, env("TELEMETRY_LOGGING_LEVEL"))
	setString(&cfg.Telemetry.Logging.Format, env("TELEMETRY_LOGGING_FORMAT"))
	setBool(&cfg.Telemetry.Logging.RedactURLs, env("TELEMETRY_LOGGING_REDACT_URLS"))
	setBool(&cfg.Telemetry.Metrics.Enabled, env("TELEMETRY_METRICS_ENABLED"))
	setString(&cfg.Telemetry.Metrics.Path, env("TELEMETRY_METRICS_PATH"))
	setBool(&cfg.Telemetry.Tracing.Enabled, env("TELEMETRY_TRACING_ENABLED"))
	setString(&cfg.Telemetry.Tracing.Endpoint, env("TELEMETRY_TRACING_ENDPOINT"))
	setFloat(&cfg.Telemetry.Tracing.SampleRatio, env("TELEMETRY_TRACING_SAMPLE_RATIO"))
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setBool(dst *bool, val string) {
	if b, err := strconv.ParseBool(val); err == nil {
		*dst = b
	}
}

func setInt(dst *int, val string) {
	if i, err := strconv.Atoi(val); err == nil {
		*dst = i
	}
}

func setFloat(dst *float64, val string) {
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = f
	}
}

func setDuration(dst *time.Duration, val string) {
	if d, err := time.ParseDuration(val); err == nil {
		*dst = d
	}
}
