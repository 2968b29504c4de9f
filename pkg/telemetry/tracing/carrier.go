package tracing

import (
	"context"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/transport"

	"go.opentelemetry.io/otel/propagation"
)

// Propagator returns the W3C Trace Context and Baggage propagator used on
// both sides of the relay.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// PropertyCarrier adapts download request properties to a TextMapCarrier.
// Keys compare case-insensitively, matching HTTP header semantics.
type PropertyCarrier struct {
	Props *[]transport.Property
}

var _ propagation.TextMapCarrier = PropertyCarrier{}

// Get returns the first value for key.
func (c PropertyCarrier) Get(key string) string {
	for _, p := range *c.Props {
		if strings.EqualFold(p.Key, key) && len(p.Values) > 0 {
			return p.Values[0]
		}
	}
	return ""
}

// Set replaces every value for key.
func (c PropertyCarrier) Set(key, value string) {
	props := *c.Props
	for i := range props {
		if strings.EqualFold(props[i].Key, key) {
			props[i].Values = []string{value}
			return
		}
	}
	*c.Props = append(props, transport.Property{Key: key, Values: []string{value}})
}

// Keys lists the property names.
func (c PropertyCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.Props))
	for _, p := range *c.Props {
		keys = append(keys, p.Key)
	}
	return keys
}

// Extract returns ctx carrying the remote span context found in props.
func Extract(ctx context.Context, props []transport.Property) context.Context {
	return Propagator().Extract(ctx, PropertyCarrier{Props: &props})
}

// Inject writes the span context of ctx into outgoing request headers.
func Inject(ctx context.Context, h http.Header) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(h))
}
