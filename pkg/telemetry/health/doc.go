// Package health provides liveness and readiness probes for the relay.
//
// # Endpoints
//
//   - /health: Liveness probe, 200 while the process runs
//   - /ready: Readiness probe, 503 when a required check fails
//   - /version: Build information
//
// # Required vs Advisory
//
// The transport socket is a required check: without it no consumer can
// reach the relay. Audit storage is advisory. When it cannot be opened the
// gate stops logging but downloads continue, so readiness reports
// "degraded" with 200 rather than failing the probe.
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("transport", health.SocketCheck(cfg.Transport.SocketPath))
//	checker.Register("network_usage_storage", health.ReadyCheck(repo), health.Advisory)
//	checker.Mount(router, version, commit, buildTime)
package health
