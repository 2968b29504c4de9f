package transport

import (
	"net/http"
	"slices"

	"mercator-hq/relay/pkg/transport/status"
)

// Property is a header name with its values.
type Property struct {
	Key    string   `cbor:"key"`
	Values []string `cbor:"values,omitempty"`
}

// DownloadRequest asks the host to fetch URL and stream the body back.
type DownloadRequest struct {
	CallID  string     `cbor:"call_id,omitempty"`
	URL     string     `cbor:"url"`
	Headers []Property `cbor:"headers,omitempty"`

	// HasSink is set by the client when a sink descriptor accompanies the
	// request.
	HasSink bool `cbor:"has_sink,omitempty"`
}

// ResponseHeaders is the first frame of every successful response.
type ResponseHeaders struct {
	Code    int        `cbor:"code"`
	Headers []Property `cbor:"headers,omitempty"`
}

// Trailer terminates a response.
type Trailer struct {
	Status *status.Status `cbor:"status"`

	// Bytes is the number of body bytes sent in chunk frames. Bytes written
	// to a sink are not counted.
	Bytes int64 `cbor:"bytes,omitempty"`
}

// HeaderProperties converts an http.Header into properties with sorted
// keys.
func HeaderProperties(h http.Header) []Property {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	props := make([]Property, 0, len(keys))
	for _, k := range keys {
		props = append(props, Property{Key: k, Values: append([]string(nil), h[k]...)})
	}
	return props
}

// PropertiesHeader converts properties back into an http.Header.
func PropertiesHeader(props []Property) http.Header {
	h := make(http.Header, len(props))
	for _, p := range props {
		for _, v := range p.Values {
			h.Add(p.Key, v)
		}
	}
	return h
}
