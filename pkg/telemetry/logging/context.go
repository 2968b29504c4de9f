package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// CallIDKey is the context key for transport call IDs.
	CallIDKey contextKey = "call_id"

	// RequestIDKey is the context key for admin HTTP request IDs.
	RequestIDKey contextKey = "request_id"

	// URLKey is the context key for the upstream URL of a call.
	URLKey contextKey = "url"
)

// WithCallID adds a call ID to the context.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, CallIDKey, callID)
}

// GetCallID retrieves the call ID from the context.
func GetCallID(ctx context.Context) string {
	if callID, ok := ctx.Value(CallIDKey).(string); ok {
		return callID
	}
	return ""
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithURL adds the upstream URL to the context.
func WithURL(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, URLKey, url)
}

// GetURL retrieves the upstream URL from the context.
func GetURL(ctx context.Context) string {
	if url, ok := ctx.Value(URLKey).(string); ok {
		return url
	}
	return ""
}

// ContextAttrs returns the log fields stored in ctx.
func ContextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if v := GetCallID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(CallIDKey), v))
	}
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), v))
	}
	if v := GetURL(ctx); v != "" {
		attrs = append(attrs, slog.String(string(URLKey), v))
	}
	return attrs
}

// FromContext returns base with the context fields attached, for code that
// logs without passing ctx on every call.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	attrs := ContextAttrs(ctx)
	if len(attrs) == 0 {
		return base
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return base.With(args...)
}
