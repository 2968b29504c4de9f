// Package tracing provides OpenTelemetry tracing for the relay.
//
// Each download is a server span named "relay.Download". Its parent is
// taken from W3C traceparent and baggage properties on the download
// request, and the upstream fetch is a client span whose context is
// injected into the outgoing HTTP headers. Spans are exported over OTLP
// gRPC.
//
// # Sampling
//
// Three strategies are supported, each wrapped in ParentBased:
//   - always: sample all root traces
//   - never: sample no root traces
//   - ratio: sample a fraction of root traces by trace ID
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	svc, err := relay.NewService(relay.Options{Tracer: tracer.Tracer(), ...})
//
// A disabled configuration yields a noop tracer.
package tracing
