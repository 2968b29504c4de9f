package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Client issues download calls to a Server over its Unix socket.
type Client struct {
	socketPath    string
	maxFrameBytes int
}

// NewClient returns a client for the server listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, maxFrameBytes: DefaultMaxFrameBytes}
}

// Download starts a call. When sink is non-nil its descriptor is passed to
// the server with the request, and the server may write the body to it
// directly instead of sending chunk frames. The caller keeps ownership of
// sink. Cancelling ctx cancels the call.
func (c *Client) Download(ctx context.Context, req *DownloadRequest, sink *os.File) (*ClientStream, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.socketPath, err)
	}
	uc := conn.(*net.UnixConn)

	call := *req
	if call.CallID == "" {
		call.CallID = uuid.NewString()
	}
	call.HasSink = sink != nil

	frame, err := cborFrame(FrameRequest, &call)
	if err != nil {
		uc.Close()
		return nil, err
	}
	data := encodeFrame(frame)
	if sink != nil {
		err = writeWithRights(uc, data, int(sink.Fd()))
	} else {
		_, err = uc.Write(data)
	}
	if err != nil {
		uc.Close()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	stream := &ClientStream{
		callID:        call.CallID,
		conn:          uc,
		reader:        bufio.NewReader(uc),
		maxFrameBytes: c.maxFrameBytes,
		closed:        make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stream.closed:
		}
	}()
	return stream, nil
}

// Event is one frame received by a ClientStream. Exactly one of Headers,
// Chunk or Trailer is set, matching Type.
type Event struct {
	Type    FrameType
	Headers *ResponseHeaders
	Chunk   []byte
	Trailer *Trailer
}

// ClientStream is the client side of one call.
type ClientStream struct {
	callID        string
	conn          *net.UnixConn
	reader        *bufio.Reader
	maxFrameBytes int
	closed        chan struct{}

	finished  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// CallID returns the call identifier sent with the request.
func (s *ClientStream) CallID() string { return s.callID }

// Recv returns the next frame. After the trailer it returns io.EOF. When
// the trailer carries a non-OK status, Recv returns the trailer event
// together with the status error.
func (s *ClientStream) Recv() (Event, error) {
	if s.finished.Load() {
		return Event{}, io.EOF
	}
	frame, err := ReadFrame(s.reader, s.maxFrameBytes)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Event{}, fmt.Errorf("connection closed before trailer: %w", io.ErrUnexpectedEOF)
		}
		return Event{}, err
	}

	switch frame.Type {
	case FrameHeaders:
		var headers ResponseHeaders
		if err := decodeFrame(frame, FrameHeaders, &headers); err != nil {
			return Event{}, err
		}
		return Event{Type: FrameHeaders, Headers: &headers}, nil
	case FrameChunk:
		return Event{Type: FrameChunk, Chunk: frame.Payload}, nil
	case FrameTrailer:
		var trailer Trailer
		if err := decodeFrame(frame, FrameTrailer, &trailer); err != nil {
			return Event{}, err
		}
		s.finished.Store(true)
		return Event{Type: FrameTrailer, Trailer: &trailer}, trailer.Status.Err()
	default:
		return Event{}, fmt.Errorf("unexpected %s frame from server", frame.Type)
	}
}

// Close cancels the call if it has not finished and releases the
// connection. It is safe to call more than once.
func (s *ClientStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if !s.finished.Load() {
			// Best effort; the server also treats a disconnect as cancel.
			_ = WriteFrame(s.conn, Frame{Type: FrameCancel})
		}
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
