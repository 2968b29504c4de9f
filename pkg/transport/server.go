package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"mercator-hq/relay/pkg/configreader"
	"mercator-hq/relay/pkg/transport/status"
)

// Handler serves download calls. Download must not block on the call's
// completion: it dispatches the work and returns, and the call ends when
// the stream is completed, failed or cancelled.
type Handler interface {
	Download(ctx context.Context, req *DownloadRequest, stream *ServerStream)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *DownloadRequest, stream *ServerStream)

// Download calls f.
func (f HandlerFunc) Download(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
	f(ctx, req, stream)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// SocketPath is the filesystem path of the Unix socket.
	SocketPath string

	// SendWindow bounds the outbound frame queue of each call.
	SendWindow int

	// MaxFrameBytes bounds the payload of an inbound frame.
	MaxFrameBytes int
}

// initialReadSize is the buffer for the first read of a connection, which
// carries the request frame and any SCM_RIGHTS descriptor.
const initialReadSize = 64 * 1024

// Server accepts download calls on a Unix socket. Each connection carries
// exactly one call.
type Server struct {
	cfg     ServerConfig
	handler Handler
	config  *configreader.Reader[Config]
	logger  *slog.Logger

	mu       sync.Mutex
	listener *net.UnixListener
	conns    map[*net.UnixConn]struct{}
	closed   bool
	cancel   context.CancelFunc

	wg     sync.WaitGroup
	active atomic.Int64
	total  atomic.Int64
}

// NewServer creates a server dispatching calls to handler. config supplies
// the idle timeout; it is read once per connection.
func NewServer(cfg ServerConfig, handler Handler, config *configreader.Reader[Config]) *Server {
	if cfg.SendWindow <= 0 {
		cfg.SendWindow = DefaultSendWindow
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = DefaultMaxFrameBytes
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		config:  config,
		logger:  slog.Default().With("component", "transport.server"),
		conns:   make(map[*net.UnixConn]struct{}),
	}
}

// Listen creates the Unix socket, replacing a stale socket file left by an
// earlier process.
func (s *Server) Listen() (*net.UnixListener, error) {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", s.cfg.SocketPath, err)
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: s.cfg.SocketPath, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}
	return listener, nil
}

// Serve accepts connections on listener until ctx is cancelled or the
// server is shut down. Cancelling ctx stops accepting but leaves in-flight
// calls running; use Shutdown to drain them. Serve always returns a non-nil
// error, ErrServerClosed after a normal stop.
func (s *Server) Serve(ctx context.Context, listener *net.UnixListener) error {
	// Calls outlive ctx so that Shutdown can drain them.
	callCtx, cancelCalls := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancelCalls()
		listener.Close()
		return ErrServerClosed
	}
	s.listener = listener
	s.cancel = cancelCalls
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("transport listening", "socket", s.cfg.SocketPath, "send_window", s.cfg.SendWindow)

	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go s.handleConn(callCtx, conn)
	}
}

// ActiveCalls returns the number of calls in progress.
func (s *Server) ActiveCalls() int64 { return s.active.Load() }

// TotalCalls returns the number of calls accepted since start.
func (s *Server) TotalCalls() int64 { return s.total.Load() }

// Shutdown stops accepting connections and waits for in-flight calls to
// finish. When ctx expires first, remaining calls are cancelled and their
// connections closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	cancel := s.cancel
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
	}

	s.logger.Warn("shutdown timed out, cancelling calls", "active", s.active.Load())
	if cancel != nil {
		cancel()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	<-finished
	return ctx.Err()
}

// Close stops the server immediately, cancelling in-flight calls.
func (s *Server) Close() error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn *net.UnixConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *net.UnixConn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleConn(ctx context.Context, conn *net.UnixConn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	idle := s.config.GetConfig().IdleTimeout
	if idle > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			s.logger.Debug("failed to set read deadline", "error", err)
		}
	}

	buf := make([]byte, initialReadSize)
	n, fds, err := readWithRights(conn, buf)
	if err != nil {
		s.logger.Debug("connection closed before request", "error", err)
		closeDescriptors(fds)
		return
	}

	var sink *os.File
	if len(fds) > 0 {
		sink = os.NewFile(uintptr(fds[0]), "sink")
		closeDescriptors(fds[1:])
		defer sink.Close()
	}

	reader := io.MultiReader(bytes.NewReader(buf[:n]), conn)
	frame, err := ReadFrame(reader, s.cfg.MaxFrameBytes)
	if err != nil {
		s.logger.Debug("failed to read request", "error", err)
		return
	}
	var req DownloadRequest
	if err := decodeFrame(frame, FrameRequest, &req); err != nil {
		s.logger.Warn("malformed request", "error", err)
		s.reject(conn, status.New(status.InvalidArgument, err.Error()))
		return
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Debug("failed to clear read deadline", "error", err)
	}
	if req.HasSink && sink == nil {
		s.logger.Warn("request announced a sink but none was received", "call_id", req.CallID)
	}

	s.active.Add(1)
	s.total.Add(1)
	defer s.active.Add(-1)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if sink != nil {
		callCtx = WithSink(callCtx, sink)
	}

	logger := s.logger.With("call_id", req.CallID)
	stream := newServerStream(callCtx, cancel, func(f Frame) error {
		return WriteFrame(conn, f)
	}, s.cfg.SendWindow, logger)

	go s.watchCancel(reader, cancel, logger)
	go stream.run()

	s.handler.Download(callCtx, &req, stream)
	<-stream.Done()
}

// watchCancel reads client frames after the request. A Cancel frame, a
// disconnect or a protocol error cancels the call.
func (s *Server) watchCancel(r io.Reader, cancel context.CancelFunc, logger *slog.Logger) {
	defer cancel()
	for {
		frame, err := ReadFrame(r, s.cfg.MaxFrameBytes)
		if err != nil {
			return
		}
		if frame.Type == FrameCancel {
			logger.Debug("call cancelled by client")
			return
		}
		logger.Warn("unexpected frame from client", "frame", frame.Type)
	}
}

func (s *Server) reject(conn *net.UnixConn, st *status.Status) {
	frame, err := cborFrame(FrameTrailer, &Trailer{Status: st})
	if err != nil {
		return
	}
	if err := WriteFrame(conn, frame); err != nil {
		s.logger.Debug("failed to write rejection", "error", err)
	}
}

func closeDescriptors(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
