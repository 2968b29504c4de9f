// Package relay implements the download relay: it validates a request
// against the network usage policy, fetches the URL upstream and streams
// the body back to the caller under flow control, recording one audit
// entity per call.
//
// A call moves through these states:
//
//	Received -> Validating -> Rejected
//	                       -> Fetching -> Failed
//	                                   -> HeadersSent -> Streaming -> Completed
//	                                                              -> Failed
//	                                                              -> Cancelled
//
// The body is delivered one of three ways, chosen once per call from the
// Relay__ flags: written to a client-supplied sink, sent in-band as the
// stream reports readiness, or pushed in-band in a loop.
package relay
