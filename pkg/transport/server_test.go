package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/relay/pkg/flags"
	"mercator-hq/relay/pkg/listenable"
	"mercator-hq/relay/pkg/transport/status"
)

func startServer(t *testing.T, handler Handler, props map[string]string) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.sock")
	m := flags.NewManager(flags.NewMemoryStore(props), listenable.Immediate())
	srv := NewServer(ServerConfig{SocketPath: path, SendWindow: 4}, handler, NewConfigReader(m))

	listener, err := srv.Listen()
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, listener) }()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		if err := <-served; !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve() = %v, want ErrServerClosed", err)
		}
	})
	return srv, path
}

func recvAll(t *testing.T, stream *ClientStream) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if ev.Type != 0 {
			events = append(events, ev)
		}
		if err != nil {
			return events, err
		}
	}
}

func TestServer_StreamsHeadersChunksTrailer(t *testing.T) {
	callIDs := make(chan string, 1)
	_, path := startServer(t, HandlerFunc(func(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
		callIDs <- req.CallID
		go func() {
			stream.SendHeaders(ResponseHeaders{Code: 200, Headers: []Property{{Key: "X-Test", Values: []string{"yes"}}}})
			for i := 0; i < 3; i++ {
				stream.SendChunk([]byte(req.URL))
			}
			stream.Complete()
		}()
	}), nil)

	client := NewClient(path)
	stream, err := client.Download(context.Background(), &DownloadRequest{URL: "https://example.com/a"}, nil)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	defer stream.Close()

	events, err := recvAll(t, stream)
	if err != nil {
		t.Fatalf("Recv() failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if events[0].Headers == nil || events[0].Headers.Code != 200 || events[0].Headers.Headers[0].Key != "X-Test" {
		t.Errorf("headers = %+v", events[0].Headers)
	}
	for i := 1; i <= 3; i++ {
		if string(events[i].Chunk) != "https://example.com/a" {
			t.Errorf("chunk %d = %q", i, events[i].Chunk)
		}
	}
	trailer := events[4].Trailer
	if trailer == nil || trailer.Status.Code != status.OK || trailer.Bytes != int64(3*len("https://example.com/a")) {
		t.Errorf("trailer = %+v", trailer)
	}
	if id := <-callIDs; id == "" || id != stream.CallID() {
		t.Errorf("server call id = %q, client = %q", id, stream.CallID())
	}
}

func TestServer_FailCarriesStatus(t *testing.T) {
	_, path := startServer(t, HandlerFunc(func(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
		stream.Fail(status.Errorf(status.InvalidArgument, "Rejecting non HTTPS url: '%s'", req.URL))
	}), nil)

	stream, err := NewClient(path).Download(context.Background(), &DownloadRequest{URL: "http://x"}, nil)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	defer stream.Close()

	ev, err := stream.Recv()
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("Recv() error = %v, want InvalidArgument", err)
	}
	if ev.Trailer == nil || ev.Trailer.Status.Message != "Rejecting non HTTPS url: 'http://x'" {
		t.Errorf("trailer = %+v", ev.Trailer)
	}
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() after trailer = %v, want io.EOF", err)
	}
}

func TestServer_ClientCloseCancelsCall(t *testing.T) {
	cancelled := make(chan struct{})
	_, path := startServer(t, HandlerFunc(func(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
		go func() {
			stream.SendHeaders(ResponseHeaders{Code: 200})
			<-ctx.Done()
			if stream.IsCancelled() {
				close(cancelled)
			}
		}()
	}), nil)

	stream, err := NewClient(path).Download(context.Background(), &DownloadRequest{URL: "https://x"}, nil)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	ev, err := stream.Recv()
	if err != nil || ev.Type != FrameHeaders {
		t.Fatalf("Recv() = %v, %v; want headers", ev.Type, err)
	}
	stream.Close()

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("server call was not cancelled")
	}
}

func TestServer_PassesSinkDescriptor(t *testing.T) {
	_, path := startServer(t, HandlerFunc(func(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
		sink, ok := SinkFromContext(ctx)
		if !ok || !req.HasSink {
			stream.Fail(status.Errorf(status.Internal, "no sink"))
			return
		}
		stream.SendHeaders(ResponseHeaders{Code: 200})
		if _, err := sink.Write([]byte("direct body")); err != nil {
			stream.Fail(err)
			return
		}
		stream.Complete()
	}), nil)

	sink, err := os.Create(filepath.Join(t.TempDir(), "body"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer sink.Close()

	stream, err := NewClient(path).Download(context.Background(), &DownloadRequest{URL: "https://x"}, sink)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	defer stream.Close()

	events, err := recvAll(t, stream)
	if err != nil {
		t.Fatalf("Recv() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want headers and trailer", len(events))
	}
	data, err := os.ReadFile(sink.Name())
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if string(data) != "direct body" {
		t.Errorf("sink contents = %q", data)
	}
}

func TestServer_IdleConnectionClosed(t *testing.T) {
	_, path := startServer(t, HandlerFunc(func(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
		stream.Complete()
	}), map[string]string{"Transport__idle_timeout_seconds": "1"})

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Read() = %v, want io.EOF from idle close", err)
	}
}

func TestServer_MalformedRequestRejected(t *testing.T) {
	_, path := startServer(t, HandlerFunc(func(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
		t.Error("handler called for malformed request")
	}), nil)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()
	if err := WriteFrame(conn, Frame{Type: FrameChunk, Payload: []byte("junk")}); err != nil {
		t.Fatalf("WriteFrame() failed: %v", err)
	}

	frame, err := ReadFrame(conn, 0)
	if err != nil {
		t.Fatalf("ReadFrame() failed: %v", err)
	}
	var trailer Trailer
	if err := decodeFrame(frame, FrameTrailer, &trailer); err != nil {
		t.Fatalf("decodeFrame() failed: %v", err)
	}
	if trailer.Status.Code != status.InvalidArgument {
		t.Errorf("status = %v, want InvalidArgument", trailer.Status.Code)
	}
}

func TestServer_ShutdownTimeoutCancelsCalls(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	srv, path := startServer(t, HandlerFunc(func(ctx context.Context, req *DownloadRequest, stream *ServerStream) {
		go func() {
			close(started)
			<-ctx.Done()
			close(cancelled)
		}()
	}), nil)

	stream, err := NewClient(path).Download(context.Background(), &DownloadRequest{URL: "https://x"}, nil)
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	defer stream.Close()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() = %v, want deadline exceeded", err)
	}
	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("call not cancelled by shutdown")
	}
	if srv.ActiveCalls() != 0 {
		t.Errorf("ActiveCalls() = %d after shutdown", srv.ActiveCalls())
	}
}
