// Package metrics provides Prometheus metrics for the relay.
//
// A single Collector owns the process registry. It is passed to the relay
// service and the network usage repository as their Metrics sink, and
// exports func-backed collectors for components that keep their own
// counters (the policy lookup cache, the transport server, the flag
// manager).
//
// # Metrics
//
//   - Calls: started, in flight, finished by state and mode, duration, bytes
//   - Throttle: pauses taken while streaming
//   - Gate: admission decisions, audit records written and dropped
//   - Cache: policy lookup hits, misses and entries
//   - Transport: active and total calls
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	svc := relay.NewService(relay.Options{Metrics: collector, ...})
//	_ = collector.ObserveTransport(server)
//	router.Handle("/metrics", collector.Handler())
//
// When the configuration has Enabled false every event is dropped and no
// func-backed collectors are registered.
package metrics
