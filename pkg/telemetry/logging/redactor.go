package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// Redacted replaces sensitive values.
const Redacted = "REDACTED"

// RedactURL hides the parts of raw that commonly carry credentials: the
// userinfo and every query value. Query keys, host and path are kept. A
// value that does not parse as an absolute URL is returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	if u.User != nil {
		u.User = url.User(Redacted)
	}
	if u.RawQuery != "" {
		query := u.Query()
		for key, values := range query {
			for i := range values {
				values[i] = Redacted
			}
			query[key] = values
		}
		u.RawQuery = query.Encode()
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// RedactAttr is a slog ReplaceAttr function that applies RedactURL to every
// string attribute whose value looks like an http or https URL.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	s := a.Value.String()
	if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") {
		return slog.String(a.Key, RedactURL(s))
	}
	return a
}
