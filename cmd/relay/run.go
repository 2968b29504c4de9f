package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/flags"
	"mercator-hq/relay/pkg/listenable"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/networkusage/policy"
	"mercator-hq/relay/pkg/networkusage/repository"
	"mercator-hq/relay/pkg/networkusage/retention"
	"mercator-hq/relay/pkg/networkusage/storage"
	"mercator-hq/relay/pkg/relay"
	upstreamtls "mercator-hq/relay/pkg/security/tls"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/transport"
	"mercator-hq/relay/pkg/workerpool"
)

// healthCheckTimeout bounds each readiness check.
const healthCheckTimeout = 5 * time.Second

var runFlags struct {
	socketPath string
	logLevel   string
	dryRun     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay daemon",
	Long: `Start the relay daemon with the specified configuration.

The daemon listens for download calls on the configured Unix socket and
serves health, metrics and the audit log on the admin address.

Examples:
  # Start with defaults and RELAY_* environment overrides
  relay run

  # Start with a config file
  relay run --config /etc/relay/config.yaml

  # Override the socket path
  relay run --socket /run/relay/relay.sock

  # Validate config without starting
  relay run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.socketPath, "socket", "s", "", "override transport socket path")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the daemon")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.socketPath != "" {
		cfg.Transport.SocketPath = runFlags.socketPath
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if _, err := logging.Setup(logging.Config{
		Level:      cfg.Telemetry.Logging.Level,
		Format:     cfg.Telemetry.Logging.Format,
		AddSource:  cfg.Telemetry.Logging.AddSource,
		RedactURLs: cfg.Telemetry.Logging.RedactURLs,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	d, err := newDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	return d.run(ctx)
}

// daemon owns every long-lived component of a running relay.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	tracer    *tracing.Tracer
	pool      *workerpool.Pool
	flagFile  *flags.FileStore
	flags     *flags.Manager
	policy    *policy.CachedTable
	repo      networkusage.Repository
	pruner    *retention.Pruner
	collector *metrics.Collector
	fetcher   *relay.Fetcher
	service   *relay.Service
	transport *transport.Server
	listener  *net.UnixListener
	health    *health.Checker
	admin     *server.Server
}

// newDaemon builds and wires the components described by cfg. On error
// everything created so far is released.
func newDaemon(ctx context.Context, cfg *config.Config) (d *daemon, err error) {
	d = &daemon{
		cfg:    cfg,
		logger: slog.Default().With("component", "daemon"),
	}
	defer func() {
		if err != nil {
			d.close()
			d = nil
		}
	}()

	d.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return d, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	d.pool = workerpool.New("relay", cfg.Relay.Workers)

	d.flagFile, err = flags.NewFileStore(flags.FileStoreConfig{
		Path:             cfg.Flags.File,
		Watch:            cfg.Flags.Watch,
		DebounceInterval: cfg.Flags.DebounceInterval,
	})
	if err != nil {
		return d, cli.NewConfigError("flags.file", err.Error())
	}
	d.flags = flags.NewManager(flags.NewEnvStore(d.flagFile), listenable.Deferred(d.pool))

	d.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	if err = d.collector.ObserveFlags(d.flags); err != nil {
		return d, fmt.Errorf("failed to register flag metrics: %w", err)
	}

	if err = d.setupNetworkUsage(ctx); err != nil {
		return d, err
	}

	var fetcherOpts []relay.FetcherOption
	if fetcherOpts, err = upstreamTLSOptions(ctx, &cfg.Relay.TLS); err != nil {
		return d, err
	}
	relayConfig := relay.NewConfigReader(d.flags)
	d.fetcher = relay.NewFetcher(relayConfig, fetcherOpts...)
	d.service, err = relay.NewService(relay.Options{
		Config:     relayConfig,
		Repository: d.repo,
		Fetcher:    d.fetcher,
		Executor:   d.pool,
		Metrics:    d.collector,
		Tracer:     d.tracer.Tracer(),
	})
	if err != nil {
		return d, fmt.Errorf("failed to create relay service: %w", err)
	}

	d.transport = transport.NewServer(transport.ServerConfig{
		SocketPath:    cfg.Transport.SocketPath,
		SendWindow:    cfg.Transport.SendWindow,
		MaxFrameBytes: cfg.Transport.MaxFrameBytes,
	}, d.service.Handler(), transport.NewConfigReader(d.flags))
	if err = d.collector.ObserveTransport(d.transport); err != nil {
		return d, fmt.Errorf("failed to register transport metrics: %w", err)
	}
	d.listener, err = d.transport.Listen()
	if err != nil {
		return d, err
	}

	d.health = health.New(healthCheckTimeout)
	d.health.Register("transport", health.SocketCheck(cfg.Transport.SocketPath), health.Required)
	if lr, ok := d.repo.(*repository.LogRepository); ok {
		d.health.Register("network_usage_storage", health.ReadyCheck(lr), health.Advisory)
		table := d.policy
		d.health.Register("policy_table", health.NonEmptyCheck("policy entries", func() int {
			return table.Table().Len()
		}), health.Advisory)
	}

	if cfg.Admin.Enabled {
		metricsHandler := d.collector.Handler()
		if !cfg.Telemetry.Metrics.Enabled {
			metricsHandler = nil
		}
		d.admin, err = server.NewServer(&cfg.Admin, server.Options{
			Health:      d.health,
			Metrics:     metricsHandler,
			MetricsPath: cfg.Telemetry.Metrics.Path,
			Usage:       d.repo,
			Flags:       d.flags,
			Build:       server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
		})
		if err != nil {
			return d, fmt.Errorf("failed to create admin server: %w", err)
		}
	}
	return d, nil
}

// setupNetworkUsage loads the policy table and builds the audit
// repository. When network usage is disabled every request passes the gate
// and nothing is recorded.
func (d *daemon) setupNetworkUsage(ctx context.Context) error {
	cfg := &d.cfg.NetworkUsage
	if !cfg.Enabled {
		d.logger.Warn("network usage gate disabled, all HTTPS requests are allowed")
		d.repo = allowAll{}
		return nil
	}

	table, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		return cli.NewConfigError("network_usage.policy_file", err.Error())
	}
	d.policy = policy.NewCachedTable(table, cfg.LookupCache.Size, cfg.LookupCache.TTL)
	if err := d.collector.ObserveCache("policy", d.policy); err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}

	repo, err := repository.New(repository.Options{
		Table:       d.policy,
		OpenStorage: storageOpener(cfg),
		Config:      repository.NewConfigReader(d.flags),
		Recorder: repository.RecorderConfig{
			AsyncBuffer:  cfg.Recorder.AsyncBuffer,
			WriteTimeout: cfg.Recorder.WriteTimeout,
		},
		Metrics: d.collector,
	})
	if err != nil {
		return fmt.Errorf("failed to create network usage repository: %w", err)
	}
	d.repo = repo
	d.logger.Info("network usage gate enabled",
		"policy_file", cfg.PolicyFile,
		"entries", table.Len(),
		"backend", cfg.Backend,
	)

	if cfg.Retention.Days > 0 {
		d.pruner = retention.NewPruner(repo, &retention.Config{
			RetentionDays:       cfg.Retention.Days,
			PruneSchedule:       cfg.Retention.PruneSchedule,
			ArchiveBeforeDelete: cfg.Retention.ArchiveBeforeDelete,
			ArchivePath:         cfg.Retention.ArchivePath,
		}, nil)
		if err := d.pruner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start retention pruner: %w", err)
		}
	}
	return nil
}

// upstreamTLSOptions builds the fetcher's TLS client config. A configured
// client certificate is reloaded until ctx is done.
func upstreamTLSOptions(ctx context.Context, cfg *config.UpstreamTLSConfig) ([]relay.FetcherOption, error) {
	tc := &upstreamtls.Config{
		CAFile:         cfg.CAFile,
		MinVersion:     cfg.MinVersion,
		CipherSuites:   cfg.CipherSuites,
		CertFile:       cfg.CertFile,
		KeyFile:        cfg.KeyFile,
		ReloadInterval: cfg.ReloadInterval,
	}
	if tc.IsZero() {
		return nil, nil
	}

	tlsConfig, reloader, err := tc.ToTLSConfig()
	if err != nil {
		return nil, cli.NewConfigError("relay.tls", err.Error())
	}
	if reloader != nil {
		if err := reloader.Start(ctx); err != nil {
			return nil, cli.NewConfigError("relay.tls.cert_file", err.Error())
		}
	}
	return []relay.FetcherOption{relay.WithTLSConfig(tlsConfig)}, nil
}

// storageOpener returns the lazy audit storage constructor for cfg.
func storageOpener(cfg *config.NetworkUsageConfig) func(context.Context) (networkusage.Storage, error) {
	return func(context.Context) (networkusage.Storage, error) {
		if cfg.Backend == "memory" {
			return storage.NewMemoryStorage(), nil
		}
		return storage.NewSQLiteStorage(sqliteConfig(&cfg.SQLite))
	}
}

func sqliteConfig(cfg *config.SQLiteConfig) *storage.SQLiteConfig {
	return &storage.SQLiteConfig{
		Path:         cfg.Path,
		Driver:       cfg.Driver,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		WALMode:      cfg.WALMode,
		BusyTimeout:  cfg.BusyTimeout,
	}
}

// run serves until ctx is cancelled or a server fails, then shuts down.
func (d *daemon) run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() {
		if err := d.transport.Serve(ctx, d.listener); err != nil && !errors.Is(err, transport.ErrServerClosed) {
			errCh <- fmt.Errorf("transport server: %w", err)
		}
	}()
	if d.admin != nil {
		go func() {
			if err := d.admin.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}
	if d.cfg.Flags.Watch {
		go func() {
			if err := d.flagFile.Watch(ctx); err != nil {
				d.logger.Error("flag file watch stopped", "error", err)
			}
		}()
	}

	d.logger.Info("relay started",
		"version", Version,
		"socket", d.cfg.Transport.SocketPath,
		"admin", d.cfg.Admin.Enabled,
		"workers", d.cfg.Relay.Workers,
		"tracing", d.tracer.Enabled(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		d.logger.Error("server failed, shutting down", "error", runErr)
	}

	d.shutdown()
	return runErr
}

// shutdown drains in-flight calls within the transport shutdown timeout
// and releases everything.
func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Transport.ShutdownTimeout)
	defer cancel()

	if d.transport != nil {
		if err := d.transport.Shutdown(ctx); err != nil {
			d.logger.Warn("transport shutdown incomplete", "error", err)
		}
	}
	if d.admin != nil {
		if err := d.admin.Shutdown(ctx); err != nil {
			d.logger.Warn("admin shutdown incomplete", "error", err)
		}
	}
	d.close()
	d.logger.Info("relay stopped")
}

// close releases components in reverse dependency order. It tolerates a
// partially built daemon.
func (d *daemon) close() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Transport.ShutdownTimeout)
	defer cancel()

	if d.transport != nil {
		d.transport.Close()
	}
	if d.pruner != nil {
		d.pruner.Stop()
	}
	if d.pool != nil {
		if err := d.pool.Close(ctx); err != nil {
			d.logger.Warn("worker pool did not drain", "error", err)
		}
	}
	if d.repo != nil {
		if err := d.repo.Close(); err != nil {
			d.logger.Warn("failed to close network usage repository", "error", err)
		}
	}
	if d.fetcher != nil {
		d.fetcher.Close()
	}
	if d.flags != nil {
		d.flags.Close()
	}
	if d.flagFile != nil {
		d.flagFile.Close()
	}
	if d.tracer != nil {
		if err := d.tracer.Shutdown(ctx); err != nil {
			d.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

// allowAll is the gate used when network usage is disabled: every
// connection is treated as known and nothing is audited.
type allowAll struct {
	networkusage.NoOp
}

func (allowAll) IsKnownConnection(networkusage.ConnectionType, networkusage.ConnectionKey) bool {
	return true
}

func (allowAll) ShouldRejectRequest(networkusage.ConnectionType, networkusage.ConnectionKey) bool {
	return false
}
