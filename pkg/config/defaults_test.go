package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(*testing.T, *Config)
	}{
		{
			name:  "empty config gets defaults",
			input: Config{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Transport.SocketPath != DefaultSocketPath {
					t.Errorf("expected socket path %q, got %q", DefaultSocketPath, cfg.Transport.SocketPath)
				}
				if cfg.Transport.SendWindow != DefaultSendWindow {
					t.Errorf("expected send window %d, got %d", DefaultSendWindow, cfg.Transport.SendWindow)
				}
				if cfg.Admin.ListenAddress != DefaultAdminListenAddress {
					t.Errorf("expected listen address %q, got %q", DefaultAdminListenAddress, cfg.Admin.ListenAddress)
				}
				if cfg.Relay.Workers != DefaultRelayWorkers {
					t.Errorf("expected workers %d, got %d", DefaultRelayWorkers, cfg.Relay.Workers)
				}
				if cfg.NetworkUsage.SQLite.Driver != DefaultSQLiteDriver {
					t.Errorf("expected driver %q, got %q", DefaultSQLiteDriver, cfg.NetworkUsage.SQLite.Driver)
				}
				if cfg.Telemetry.Metrics.Namespace != DefaultMetricsNamespace {
					t.Errorf("expected namespace %q, got %q", DefaultMetricsNamespace, cfg.Telemetry.Metrics.Namespace)
				}
				// Zero is meaningful for these.
				if cfg.NetworkUsage.Retention.Days != 0 {
					t.Errorf("expected retention days untouched, got %d", cfg.NetworkUsage.Retention.Days)
				}
				if cfg.NetworkUsage.LookupCache.Size != 0 {
					t.Errorf("expected cache size untouched, got %d", cfg.NetworkUsage.LookupCache.Size)
				}
			},
		},
		{
			name: "existing values are preserved",
			input: Config{
				Transport: TransportConfig{SocketPath: "/custom.sock", SendWindow: 2},
				Relay:     RelayConfig{Workers: 3},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Transport.SocketPath != "/custom.sock" {
					t.Errorf("expected custom socket path, got %q", cfg.Transport.SocketPath)
				}
				if cfg.Transport.SendWindow != 2 {
					t.Errorf("expected send window 2, got %d", cfg.Transport.SendWindow)
				}
				if cfg.Relay.Workers != 3 {
					t.Errorf("expected 3 workers, got %d", cfg.Relay.Workers)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			ApplyDefaults(&cfg)
			tt.check(t, &cfg)
		})
	}
}

func TestDefault_Booleans(t *testing.T) {
	cfg := Default()
	if !cfg.Admin.Enabled || !cfg.Flags.Watch || !cfg.NetworkUsage.Enabled {
		t.Error("expected admin, flag watch and network usage enabled by default")
	}
	if !cfg.NetworkUsage.SQLite.WALMode {
		t.Error("expected WAL mode by default")
	}
	if !cfg.Telemetry.Logging.RedactURLs {
		t.Error("expected URL redaction by default")
	}
	if cfg.NetworkUsage.Retention.Days != DefaultRetentionDays {
		t.Errorf("expected retention days %d, got %d", DefaultRetentionDays, cfg.NetworkUsage.Retention.Days)
	}
}
