// Package transport is the local RPC transport between a sandboxed client
// and the relay daemon.
//
// Calls run over a Unix-domain stream socket, one call per connection.
// Every frame is a type byte, a big-endian uint32 payload length and the
// payload. Chunk frames carry raw body bytes; all other frames carry a CBOR
// message (see package codec).
//
// The client opens a connection and sends a Request frame. A file
// descriptor may accompany it as SCM_RIGHTS ancillary data, in which case
// the server exposes it to the handler through SinkFromContext. The server
// answers with a Headers frame, zero or more Chunk frames and a Trailer.
// The client cancels by sending a Cancel frame or by closing the
// connection.
package transport
