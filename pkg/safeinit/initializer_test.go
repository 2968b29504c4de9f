package safeinit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestInitializer_SingleFlight(t *testing.T) {
	in := New[string]("store")
	release := make(chan struct{})
	var calls atomic.Int32

	supplier := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "ready", nil
	}

	const callers = 32
	futures := make([]*Future[string], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			futures[i] = in.Initialize(context.Background(), supplier)
		}(i)
	}
	wg.Wait()
	close(release)

	for i, f := range futures {
		v, err := f.Wait(context.Background())
		if err != nil || v != "ready" {
			t.Fatalf("future %d = (%q, %v)", i, v, err)
		}
		if f != futures[0] {
			t.Errorf("future %d is a different attempt", i)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("supplier ran %d times, want 1", calls.Load())
	}
	if !in.IsInitialized() {
		t.Error("IsInitialized() = false after success")
	}

	v, err := in.Initialize(context.Background(), supplier).Wait(context.Background())
	if err != nil || v != "ready" || calls.Load() != 1 {
		t.Errorf("Initialize() after success = (%q, %v), calls %d", v, err, calls.Load())
	}
}

func TestInitializer_FailureAllowsRetry(t *testing.T) {
	in := New[int]("db")
	boom := errors.New("boom")

	_, err := in.Initialize(context.Background(), func(context.Context) (int, error) {
		return 0, boom
	}).Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Wait() error = %v, want boom", err)
	}
	if in.State() != Uninitialized {
		t.Errorf("State() = %s after failure", in.State())
	}

	v, err := in.Initialize(context.Background(), func(context.Context) (int, error) {
		return 7, nil
	}).Wait(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("retry = (%d, %v)", v, err)
	}
}

func TestInitializer_ResetDetachesInflightAttempt(t *testing.T) {
	in := New[int]("cache")
	release := make(chan struct{})

	stale := in.Initialize(context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	in.Reset()

	fresh := in.Initialize(context.Background(), func(context.Context) (int, error) {
		return 2, nil
	})
	if v, err := fresh.Wait(context.Background()); err != nil || v != 2 {
		t.Fatalf("fresh = (%d, %v)", v, err)
	}

	close(release)
	if v, _ := stale.Wait(context.Background()); v != 1 {
		t.Errorf("stale future = %d, want 1", v)
	}
	if v, ok := in.Value(); !ok || v != 2 {
		t.Errorf("Value() = (%d, %v), want (2, true)", v, ok)
	}
}

func TestInitializer_CheckInitialized(t *testing.T) {
	in := New[int]("network usage")

	err := in.CheckInitialized()
	var nie *NotInitializedError
	if !errors.As(err, &nie) || nie.Component != "network usage" {
		t.Fatalf("CheckInitialized() = %v", err)
	}

	in.Initialize(context.Background(), func(context.Context) (int, error) { return 1, nil }).Wait(context.Background())
	if err := in.CheckInitialized(); err != nil {
		t.Errorf("CheckInitialized() after init = %v", err)
	}

	in.Reset()
	if in.IsInitialized() {
		t.Error("IsInitialized() = true after Reset")
	}
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	in := New[int]("slow")
	f := in.Initialize(context.Background(), func(ctx context.Context) (int, error) {
		time.Sleep(time.Second)
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}
