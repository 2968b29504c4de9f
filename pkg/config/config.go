package config

import "time"

// Config is the root configuration structure for the relay process.
// Hot-reloadable behavior lives in flags; this file holds what is fixed for
// the lifetime of a process.
type Config struct {
	// Transport configures the local Unix-socket endpoint consumers connect to.
	Transport TransportConfig `yaml:"transport"`

	// Admin configures the operator HTTP surface (health, metrics, audit).
	Admin AdminConfig `yaml:"admin"`

	// Relay configures the streaming relay service.
	Relay RelayConfig `yaml:"relay"`

	// Flags configures the hot-reloadable property file.
	Flags FlagsConfig `yaml:"flags"`

	// NetworkUsage configures the admission and audit gate.
	NetworkUsage NetworkUsageConfig `yaml:"network_usage"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TransportConfig contains configuration for the local transport server.
type TransportConfig struct {
	// SocketPath is the Unix-domain socket the server listens on.
	// Default: "/tmp/relay.sock"
	SocketPath string `yaml:"socket_path"`

	// SendWindow is the number of outbound frames buffered per call before
	// the stream reports not-ready.
	// Default: 16
	SendWindow int `yaml:"send_window"`

	// MaxFrameBytes caps the size of a single inbound or outbound frame.
	// Default: 16777216 (16MiB)
	MaxFrameBytes int `yaml:"max_frame_bytes"`

	// ShutdownTimeout is how long in-flight calls may drain on shutdown
	// before they are cancelled.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AdminConfig contains configuration for the admin HTTP server.
type AdminConfig struct {
	// Enabled turns the admin server on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address and port for the admin server.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RelayConfig contains configuration for the relay service.
type RelayConfig struct {
	// Workers bounds the number of downloads fetched concurrently.
	// Default: 32
	Workers int `yaml:"workers"`

	// TLS configures the client side of upstream HTTPS downloads.
	TLS UpstreamTLSConfig `yaml:"tls"`
}

// UpstreamTLSConfig contains TLS settings for upstream HTTPS connections.
type UpstreamTLSConfig struct {
	// CAFile adds trusted roots to the system pool.
	CAFile string `yaml:"ca_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 cipher suites by name.
	CipherSuites []string `yaml:"cipher_suites"`

	// CertFile and KeyFile name a client certificate, reloaded on change.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ReloadInterval is how often the client certificate is checked.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// FlagsConfig contains configuration for the property file backing
// hot-reloadable flags.
type FlagsConfig struct {
	// File is a flat YAML mapping of flag name to value. A missing file is
	// treated as empty.
	// Default: "./flags.yaml"
	File string `yaml:"file"`

	// Watch enables hot reload when the file changes.
	// Default: true
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a reload is applied.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// NetworkUsageConfig contains configuration for the admission and audit gate.
type NetworkUsageConfig struct {
	// Enabled turns the gate on. When false every request is admitted and
	// nothing is audited.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// PolicyFile is the YAML policy table of known connections.
	// Default: "./network_usage_policy.yaml"
	PolicyFile string `yaml:"policy_file"`

	// Backend selects the audit storage: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Retention   RetentionConfig   `yaml:"retention"`
	LookupCache LookupCacheConfig `yaml:"lookup_cache"`
}

// SQLiteConfig contains configuration for SQLite audit storage.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/network_usage.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig contains configuration for the asynchronous audit writer.
type RecorderConfig struct {
	// AsyncBuffer is the size of the write queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds enqueueing and each storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetentionConfig contains configuration for audit record pruning.
type RetentionConfig struct {
	// Days is the number of days records are kept. 0 keeps records forever.
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a standard five-field cron expression.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete writes pruned records to ArchivePath first.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the directory receiving archive files.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`
}

// LookupCacheConfig sizes the policy lookup cache.
type LookupCacheConfig struct {
	// Size is the number of cached lookups. 0 disables the cache.
	// Default: 1024
	Size int `yaml:"size"`

	// TTL is how long a cached lookup is trusted.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json", "text", or "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource adds source file and line to log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactURLs strips credentials and query values from logged URLs.
	// Default: true
	RedactURLs bool `yaml:"redact_urls"`
}

// MetricsConfig contains configuration for Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the /metrics endpoint.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path metrics are served on.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "relay"
	Namespace string `yaml:"namespace"`

	// Subsystem is an optional second prefix.
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains configuration for OpenTelemetry tracing. Each
// download call is one server span; the upstream request carries its
// context.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as service.name.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`

	// Sampler is "always", "never", or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of root traces sampled by "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
