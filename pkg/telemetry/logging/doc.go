// Package logging builds the process logger and carries per-call log
// fields through a context.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON, text, and console formats
//   - URL redaction (query values and userinfo) for upstream URLs
//   - Context-aware logging with call IDs and request IDs
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:      "info",
//	    Format:     "json",
//	    RedactURLs: true,
//	})
//	slog.SetDefault(logger)
//
//	ctx = logging.WithCallID(ctx, "3f6c...")
//	ctx = logging.WithURL(ctx, "https://cdn.example.com/model.bin?token=abc")
//	slog.InfoContext(ctx, "download started")
//	// call_id=3f6c... url=https://cdn.example.com/model.bin?token=REDACTED
//
// Components obtain their logger with
// slog.Default().With("component", "<name>").
package logging
