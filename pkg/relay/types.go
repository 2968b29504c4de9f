package relay

import (
	"fmt"
	"time"

	"mercator-hq/relay/pkg/transport"
)

// BufferLength is the size of each upstream read and of each chunk frame.
const BufferLength = 1024

// throttleBoundary is the amount of in-band data between throttle pauses.
const throttleBoundary = 16 * 1024 * 1024

// ResponseStream is the consumer side of a call.
type ResponseStream interface {
	IsCancelled() bool
	IsReady() bool
	SetReadyCallback(cb func())
	SendHeaders(headers transport.ResponseHeaders) error
	SendChunk(data []byte) error
	Complete() error
	Fail(err error) error
}

var _ ResponseStream = (*transport.ServerStream)(nil)

// State is the lifecycle state of a call.
type State int

const (
	StateReceived State = iota
	StateValidating
	StateRejected
	StateFetching
	StateHeadersSent
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateReceived:    "received",
	StateValidating:  "validating",
	StateRejected:    "rejected",
	StateFetching:    "fetching",
	StateHeadersSent: "headers_sent",
	StateStreaming:   "streaming",
	StateCompleted:   "completed",
	StateFailed:      "failed",
	StateCancelled:   "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Mode is how the body of a call is delivered.
type Mode string

const (
	ModeSink  Mode = "sink"
	ModeReady Mode = "ready"
	ModePush  Mode = "push"
)

// UnrecognizedURL is the status detail attached to policy rejections.
type UnrecognizedURL struct {
	URL string `cbor:"url"`
}

// TypeName implements status.Typed.
func (UnrecognizedURL) TypeName() string { return "relay.UnrecognizedURL" }

// Metrics receives call lifecycle events. A nil Metrics is ignored.
type Metrics interface {
	CallStarted()
	CallFinished(state State, mode Mode, bytes int64, elapsed time.Duration)
	Throttled()
}

type noMetrics struct{}

func (noMetrics) CallStarted()                                 {}
func (noMetrics) CallFinished(State, Mode, int64, time.Duration) {}
func (noMetrics) Throttled()                                   {}
