package transport

import (
	"context"
	"log/slog"
	"sync"

	"mercator-hq/relay/pkg/transport/status"
)

// DefaultSendWindow is the number of outbound frames a stream queues before
// it reports not ready.
const DefaultSendWindow = 16

// ServerStream is the server side of one call. Frames are queued by the
// handler and written to the connection by a dedicated writer goroutine.
//
// The queue is bounded by the send window. IsReady reports whether another
// frame fits; when a full queue drains below the window, the writer invokes
// the ready callback. Sends on a full queue block until space frees up or
// the call is cancelled. The trailer is always accepted.
type ServerStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	write  func(Frame) error
	window int
	logger *slog.Logger

	mu         sync.Mutex
	queue      []Frame
	terminated bool
	onReady    func()
	bytes      int64

	wake  chan struct{}
	space chan struct{}
	done  chan struct{}
}

func newServerStream(ctx context.Context, cancel context.CancelFunc, write func(Frame) error, window int, logger *slog.Logger) *ServerStream {
	if window <= 0 {
		window = DefaultSendWindow
	}
	return &ServerStream{
		ctx:    ctx,
		cancel: cancel,
		write:  write,
		window: window,
		logger: logger,
		wake:   make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Context returns the call context. It is cancelled when the client
// cancels or disconnects.
func (s *ServerStream) Context() context.Context { return s.ctx }

// IsCancelled reports whether the client cancelled the call.
func (s *ServerStream) IsCancelled() bool { return s.ctx.Err() != nil }

// IsReady reports whether a frame can be queued without blocking.
func (s *ServerStream) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.terminated && s.ctx.Err() == nil && len(s.queue) < s.window
}

// SetReadyCallback registers the function the writer calls when the queue
// drains below the window. It replaces any earlier callback.
func (s *ServerStream) SetReadyCallback(cb func()) {
	s.mu.Lock()
	s.onReady = cb
	s.mu.Unlock()
}

// SendHeaders queues the response headers.
func (s *ServerStream) SendHeaders(headers ResponseHeaders) error {
	frame, err := cborFrame(FrameHeaders, &headers)
	if err != nil {
		return err
	}
	return s.enqueue(frame)
}

// SendChunk queues a copy of data as a chunk frame.
func (s *ServerStream) SendChunk(data []byte) error {
	payload := make([]byte, len(data))
	copy(payload, data)
	return s.enqueue(Frame{Type: FrameChunk, Payload: payload})
}

// Complete ends the call successfully.
func (s *ServerStream) Complete() error {
	return s.finish(status.New(status.OK, ""))
}

// Fail ends the call with the status derived from err.
func (s *ServerStream) Fail(err error) error {
	return s.finish(status.FromError(err))
}

// Done is closed once the writer has stopped: after the trailer is written,
// on cancellation, or on a connection error.
func (s *ServerStream) Done() <-chan struct{} { return s.done }

// BytesSent returns the number of body bytes queued as chunks.
func (s *ServerStream) BytesSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

func (s *ServerStream) enqueue(frame Frame) error {
	for {
		s.mu.Lock()
		if s.terminated || s.ctx.Err() != nil {
			s.mu.Unlock()
			return ErrAlreadyTerminated
		}
		if len(s.queue) < s.window {
			s.queue = append(s.queue, frame)
			if frame.Type == FrameChunk {
				s.bytes += int64(len(frame.Payload))
			}
			s.mu.Unlock()
			signal(s.wake)
			return nil
		}
		s.mu.Unlock()

		select {
		case <-s.space:
		case <-s.ctx.Done():
		}
	}
}

func (s *ServerStream) finish(st *status.Status) error {
	s.mu.Lock()
	if s.terminated || s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrAlreadyTerminated
	}
	frame, err := cborFrame(FrameTrailer, &Trailer{Status: st, Bytes: s.bytes})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.queue = append(s.queue, frame)
	s.terminated = true
	s.mu.Unlock()
	signal(s.wake)
	return nil
}

// run is the writer loop. It is the only goroutine writing to the
// connection.
func (s *ServerStream) run() {
	defer close(s.done)
	for {
		if s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.ctx.Done():
				return
			}
		}
		frame := s.queue[0]
		s.queue[0] = Frame{}
		s.queue = s.queue[1:]
		drained := !s.terminated && len(s.queue) == s.window-1
		onReady := s.onReady
		s.mu.Unlock()
		signal(s.space)

		if err := s.write(frame); err != nil {
			s.logger.Debug("stream write failed", "frame", frame.Type, "error", err)
			s.cancel()
			return
		}
		if frame.Type == FrameTrailer {
			return
		}
		if drained && onReady != nil {
			onReady()
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
