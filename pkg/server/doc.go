// Package server provides the admin HTTP server of the relay host.
//
// The router is built on go-chi and serves:
//
//	GET    /health                 liveness
//	GET    /ready                  readiness, 503 when a required check fails
//	GET    /version                build information
//	GET    /metrics                Prometheus exposition (path configurable)
//	GET    /v1/network-usage       audit records as JSON
//	DELETE /v1/network-usage       purge records created before ?before=
//	GET    /v1/flags               current flag properties
//
// The list endpoint accepts type, status, since, until (RFC3339), limit
// (default 100, at most 1000) and offset.
//
// Every request gets an X-Request-ID, is logged on completion, and is
// shielded from handler panics.
//
//	srv, err := server.NewServer(&cfg.Admin, server.Options{
//	    Health:      checker,
//	    Metrics:     collector.Handler(),
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	    Usage:       repo,
//	    Flags:       manager,
//	})
//	go srv.Start(ctx)
package server
