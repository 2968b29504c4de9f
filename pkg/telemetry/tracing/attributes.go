package tracing

import (
	"mercator-hq/relay/pkg/telemetry/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on relay spans.
const (
	AttrCallID       = "relay.call_id"
	AttrURL          = "url.full"
	AttrMode         = "relay.mode"
	AttrState        = "relay.state"
	AttrBytes        = "relay.bytes"
	AttrStatusCode   = "http.response.status_code"
	AttrErrorMessage = "error.message"
)

// CallAttributes identifies a download. The URL is redacted.
func CallAttributes(callID, url string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrURL, logging.RedactURL(url))}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrCallID, callID))
	}
	return attrs
}

// SetResponseCode records the upstream status code.
func SetResponseCode(span trace.Span, code int) {
	span.SetAttributes(attribute.Int(AttrStatusCode, code))
}

// SetOutcome records how a download ended. An empty mode is omitted.
func SetOutcome(span trace.Span, state, mode string, bytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrState, state),
		attribute.Int64(AttrBytes, bytes),
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(AttrMode, mode))
	}
	span.SetAttributes(attrs...)
}
