package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/relay/pkg/transport/status"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *frameRecorder) write(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *frameRecorder) types() []FrameType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FrameType, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Type
	}
	return out
}

func waitDone(t *testing.T, s *ServerStream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream writer did not stop")
	}
}

func TestServerStream_WindowAndReadyCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &frameRecorder{}
	s := newServerStream(ctx, cancel, rec.write, 2, slog.Default())

	if !s.IsReady() {
		t.Fatal("IsReady() = false on empty stream")
	}
	if err := s.SendHeaders(ResponseHeaders{Code: 200}); err != nil {
		t.Fatalf("SendHeaders() failed: %v", err)
	}
	if err := s.SendChunk([]byte("hello")); err != nil {
		t.Fatalf("SendChunk() failed: %v", err)
	}
	if s.IsReady() {
		t.Fatal("IsReady() = true with a full window")
	}

	var readyCalls atomic.Int32
	ready := make(chan struct{}, 4)
	s.SetReadyCallback(func() {
		readyCalls.Add(1)
		ready <- struct{}{}
	})

	go s.run()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("ready callback not invoked")
	}
	if err := s.Complete(); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	waitDone(t, s)

	got := rec.types()
	want := []FrameType{FrameHeaders, FrameChunk, FrameTrailer}
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
	if n := readyCalls.Load(); n != 1 {
		t.Errorf("ready callback calls = %d, want 1", n)
	}
	if s.BytesSent() != 5 {
		t.Errorf("BytesSent() = %d, want 5", s.BytesSent())
	}

	var trailer Trailer
	if err := decodeFrame(rec.frames[2], FrameTrailer, &trailer); err != nil {
		t.Fatalf("decodeFrame() failed: %v", err)
	}
	if trailer.Status.Code != status.OK || trailer.Bytes != 5 {
		t.Errorf("trailer = %+v", trailer)
	}

	if err := s.Complete(); !errors.Is(err, ErrAlreadyTerminated) {
		t.Errorf("second Complete() = %v, want ErrAlreadyTerminated", err)
	}
	if err := s.Fail(errors.New("late")); !errors.Is(err, ErrAlreadyTerminated) {
		t.Errorf("Fail() after Complete = %v, want ErrAlreadyTerminated", err)
	}
	if err := s.SendChunk([]byte("x")); !errors.Is(err, ErrAlreadyTerminated) {
		t.Errorf("SendChunk() after Complete = %v, want ErrAlreadyTerminated", err)
	}
}

func TestServerStream_SendBlocksUntilSpace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &frameRecorder{}
	s := newServerStream(ctx, cancel, rec.write, 1, slog.Default())

	if err := s.SendHeaders(ResponseHeaders{Code: 200}); err != nil {
		t.Fatalf("SendHeaders() failed: %v", err)
	}

	sent := make(chan error, 1)
	go func() { sent <- s.SendChunk([]byte("x")) }()

	select {
	case err := <-sent:
		t.Fatalf("SendChunk() returned %v before the window drained", err)
	case <-time.After(50 * time.Millisecond):
	}

	go s.run()
	if err := <-sent; err != nil {
		t.Fatalf("SendChunk() failed: %v", err)
	}
	if err := s.Complete(); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	waitDone(t, s)
	if got := rec.types(); len(got) != 3 {
		t.Errorf("frames = %v, want 3", got)
	}
}

func TestServerStream_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &frameRecorder{}
	s := newServerStream(ctx, cancel, rec.write, 1, slog.Default())
	go s.run()

	if err := s.SendHeaders(ResponseHeaders{Code: 200}); err != nil {
		t.Fatalf("SendHeaders() failed: %v", err)
	}
	cancel()
	waitDone(t, s)

	if !s.IsCancelled() {
		t.Error("IsCancelled() = false after cancel")
	}
	if s.IsReady() {
		t.Error("IsReady() = true after cancel")
	}
	if err := s.SendChunk([]byte("x")); !errors.Is(err, ErrAlreadyTerminated) {
		t.Errorf("SendChunk() = %v, want ErrAlreadyTerminated", err)
	}
	if err := s.Complete(); !errors.Is(err, ErrAlreadyTerminated) {
		t.Errorf("Complete() = %v, want ErrAlreadyTerminated", err)
	}
}

func TestServerStream_WriteErrorCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newServerStream(ctx, cancel, func(Frame) error { return errors.New("broken pipe") }, 4, slog.Default())
	go s.run()

	if err := s.SendHeaders(ResponseHeaders{Code: 200}); err != nil {
		t.Fatalf("SendHeaders() failed: %v", err)
	}
	waitDone(t, s)
	if !s.IsCancelled() {
		t.Error("IsCancelled() = false after write failure")
	}
}
