package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsAllTasks(t *testing.T) {
	p := New("test", 4)

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
	}
	wg.Wait()

	if got := count.Load(); got != 50 {
		t.Errorf("ran %d tasks, want 50", got)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New("bounded", 2)
	defer p.Close(context.Background())

	var running, peak atomic.Int64
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		p.Execute(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		})
	}

	// Give the goroutines time to contend for the semaphore.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New("closed", 1)
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after Close = %v, want ErrPoolClosed", err)
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	p := New("panics", 1)
	done := make(chan struct{})
	p.Execute(func() { panic("boom") })
	p.Execute(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped running tasks after a panic")
	}
	p.Close(context.Background())
}

func TestInline_RunsOnCaller(t *testing.T) {
	ran := false
	Inline.Execute(func() { ran = true })
	if !ran {
		t.Error("Inline did not run the task synchronously")
	}
}
