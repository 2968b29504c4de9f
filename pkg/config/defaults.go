package config

import "time"

// Default values for configuration fields.
const (
	// Transport defaults
	DefaultSocketPath               = "/tmp/relay.sock"
	DefaultSendWindow               = 16
	DefaultMaxFrameBytes            = 16 << 20
	DefaultTransportShutdownTimeout = 30 * time.Second

	// Admin defaults
	DefaultAdminEnabled         = true
	DefaultAdminListenAddress   = "127.0.0.1:9090"
	DefaultAdminReadTimeout     = 15 * time.Second
	DefaultAdminWriteTimeout    = 30 * time.Second
	DefaultAdminIdleTimeout     = 120 * time.Second
	DefaultAdminShutdownTimeout = 10 * time.Second

	// Relay defaults
	DefaultRelayWorkers = 32

	// Flags defaults
	DefaultFlagsFile             = "./flags.yaml"
	DefaultFlagsWatch            = true
	DefaultFlagsDebounceInterval = 100 * time.Millisecond

	// Network usage defaults
	DefaultNetworkUsageEnabled    = true
	DefaultNetworkUsagePolicyFile = "./network_usage_policy.yaml"
	DefaultNetworkUsageBackend    = "sqlite"
	DefaultSQLitePath             = "data/network_usage.db"
	DefaultSQLiteDriver           = "sqlite"
	DefaultSQLiteMaxOpenConns     = 10
	DefaultSQLiteMaxIdleConns     = 5
	DefaultSQLiteWALMode          = true
	DefaultSQLiteBusyTimeout      = 5 * time.Second
	DefaultRecorderAsyncBuffer    = 1000
	DefaultRecorderWriteTimeout   = 5 * time.Second
	DefaultRetentionDays          = 30
	DefaultRetentionSchedule      = "0 3 * * *"
	DefaultRetentionArchivePath   = "data/archives/"
	DefaultLookupCacheSize        = 1024
	DefaultLookupCacheTTL         = 5 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultLoggingRedact    = true
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "relay"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingService   = "relay"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingTimeout   = 10 * time.Second
)

// Default returns a configuration with every field at its default value.
// Loading decodes the file on top of this value.
func Default() *Config {
	cfg := &Config{
		Admin:        AdminConfig{Enabled: DefaultAdminEnabled},
		Flags:        FlagsConfig{Watch: DefaultFlagsWatch},
		NetworkUsage: NetworkUsageConfig{Enabled: DefaultNetworkUsageEnabled},
	}
	cfg.NetworkUsage.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.NetworkUsage.Retention.Days = DefaultRetentionDays
	cfg.NetworkUsage.LookupCache.Size = DefaultLookupCacheSize
	cfg.Telemetry.Logging.RedactURLs = DefaultLoggingRedact
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Booleans and
// fields where zero is meaningful (retention days, cache size, sample ratio) are left
// alone; Default sets those.
func ApplyDefaults(cfg *Config) {
	// Transport defaults
	if cfg.Transport.SocketPath == "" {
		cfg.Transport.SocketPath = DefaultSocketPath
	}
	if cfg.Transport.SendWindow == 0 {
		cfg.Transport.SendWindow = DefaultSendWindow
	}
	if cfg.Transport.MaxFrameBytes == 0 {
		cfg.Transport.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if cfg.Transport.ShutdownTimeout == 0 {
		cfg.Transport.ShutdownTimeout = DefaultTransportShutdownTimeout
	}

	// Admin defaults
	if cfg.Admin.ListenAddress == "" {
		cfg.Admin.ListenAddress = DefaultAdminListenAddress
	}
	if cfg.Admin.ReadTimeout == 0 {
		cfg.Admin.ReadTimeout = DefaultAdminReadTimeout
	}
	if cfg.Admin.WriteTimeout == 0 {
		cfg.Admin.WriteTimeout = DefaultAdminWriteTimeout
	}
	if cfg.Admin.IdleTimeout == 0 {
		cfg.Admin.IdleTimeout = DefaultAdminIdleTimeout
	}
	if cfg.Admin.ShutdownTimeout == 0 {
		cfg.Admin.ShutdownTimeout = DefaultAdminShutdownTimeout
	}

	if cfg.Relay.Workers == 0 {
		cfg.Relay.Workers = DefaultRelayWorkers
	}

	// Flags defaults
	if cfg.Flags.File == "" {
		cfg.Flags.File = DefaultFlagsFile
	}
	if cfg.Flags.DebounceInterval == 0 {
		cfg.Flags.DebounceInterval = DefaultFlagsDebounceInterval
	}

	// Network usage defaults
	nu := &cfg.NetworkUsage
	if nu.PolicyFile == "" {
		nu.PolicyFile = DefaultNetworkUsagePolicyFile
	}
	if nu.Backend == "" {
		nu.Backend = DefaultNetworkUsageBackend
	}
	if nu.SQLite.Path == "" {
		nu.SQLite.Path = DefaultSQLitePath
	}
	if nu.SQLite.Driver == "" {
		nu.SQLite.Driver = DefaultSQLiteDriver
	}
	if nu.SQLite.MaxOpenConns == 0 {
		nu.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if nu.SQLite.MaxIdleConns == 0 {
		nu.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if nu.SQLite.BusyTimeout == 0 {
		nu.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if nu.Recorder.AsyncBuffer == 0 {
		nu.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if nu.Recorder.WriteTimeout == 0 {
		nu.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if nu.Retention.PruneSchedule == "" {
		nu.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if nu.Retention.ArchivePath == "" {
		nu.Retention.ArchivePath = DefaultRetentionArchivePath
	}
	if nu.LookupCache.TTL == 0 {
		nu.LookupCache.TTL = DefaultLookupCacheTTL
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}
