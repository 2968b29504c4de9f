// Package telemetry groups the observability packages used by the relay
// daemon.
//
// # Components
//
//   - logging: slog setup, per-call context attributes and URL redaction
//   - metrics: Prometheus collectors for calls, the gate, the transport and flags
//   - tracing: OpenTelemetry spans for downloads and upstream fetches
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.Setup(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//		return err
//	}
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	checker := health.New(5 * time.Second)
//	checker.Register("transport", health.SocketCheck(cfg.Transport.SocketPath), health.Required)
//	checker.Mount(router, version, commit, buildTime)
//
// Query strings and userinfo are stripped from logged URLs when
// telemetry.logging.redact_urls is set.
package telemetry
