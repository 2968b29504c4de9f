package transport

import "errors"

var (
	// ErrAlreadyTerminated is returned by a stream operation after the
	// call has completed, failed or been cancelled.
	ErrAlreadyTerminated = errors.New("transport: call already terminated")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("transport: server closed")
)
