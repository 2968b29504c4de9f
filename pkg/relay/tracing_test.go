package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"mercator-hq/relay/pkg/transport"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

const remoteTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

func withRecorder(t *testing.T, env *testEnv) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	env.service.tracer = provider.Tracer("relay-test")
	return recorder
}

func TestDownload_SpansFollowRemoteParent(t *testing.T) {
	var upstreamTraceParent atomic.Value
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamTraceParent.Store(r.Header.Get("Traceparent"))
		w.Write(payload(3000))
	}))
	t.Cleanup(upstream.Close)

	env := newTestEnv(t, upstream, nil)
	recorder := withRecorder(t, env)

	req := request(upstream.URL + "/allowed/file.bin")
	req.Headers = []transport.Property{{
		Key:    "traceparent",
		Values: []string{"00-" + remoteTraceID + "-00f067aa0ba902b7-01"},
	}}
	stream := newFakeStream()
	env.service.Download(context.Background(), req, stream)

	if stream.completed != 1 {
		t.Fatalf("completed = %d, failures = %v", stream.completed, stream.failures)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d ended spans, want 2", len(spans))
	}
	var download, fetch sdktrace.ReadOnlySpan
	for _, s := range spans {
		switch s.Name() {
		case "relay.Download":
			download = s
		case "relay.Fetch":
			fetch = s
		}
	}
	if download == nil || fetch == nil {
		t.Fatalf("missing spans: download=%v fetch=%v", download != nil, fetch != nil)
	}
	if download.SpanKind() != trace.SpanKindServer || fetch.SpanKind() != trace.SpanKindClient {
		t.Errorf("kinds = %v/%v", download.SpanKind(), fetch.SpanKind())
	}
	if got := download.SpanContext().TraceID().String(); got != remoteTraceID {
		t.Errorf("download trace ID = %s, want %s", got, remoteTraceID)
	}
	if fetch.Parent().SpanID() != download.SpanContext().SpanID() {
		t.Error("fetch span is not a child of the download span")
	}
	if download.Status().Code != codes.Ok {
		t.Errorf("download status = %+v", download.Status())
	}

	got, _ := upstreamTraceParent.Load().(string)
	if !strings.Contains(got, remoteTraceID) || !strings.Contains(got, fetch.SpanContext().SpanID().String()) {
		t.Errorf("upstream traceparent = %q, want fetch span context", got)
	}
}

func TestDownload_RejectionEndsSpanWithError(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	recorder := withRecorder(t, env)

	env.service.Download(context.Background(), request("http://127.0.0.1:1/allowed/x"), newFakeStream())

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d ended spans, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %+v, want error", spans[0].Status())
	}
}

func TestDownload_FetchFailureRecordsError(t *testing.T) {
	upstream := newUpstream(t, nil)
	url := upstream.URL + "/allowed/file.bin"
	upstream.Close()

	env := newTestEnv(t, nil, nil)
	recorder := withRecorder(t, env)
	env.service.Download(context.Background(), request(url), newFakeStream())

	for _, s := range recorder.Ended() {
		if s.Status().Code != codes.Error {
			t.Errorf("span %s status = %+v, want error", s.Name(), s.Status())
		}
	}
	if n := len(recorder.Ended()); n != 2 {
		t.Errorf("got %d ended spans, want 2", n)
	}
}
