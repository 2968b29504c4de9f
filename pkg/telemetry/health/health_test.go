package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/relay/pkg/clock"
)

func TestNew(t *testing.T) {
	if got := New(0).checkTimeout; got != 5*time.Second {
		t.Errorf("expected default timeout 5s, got %v", got)
	}
	if got := New(time.Second).checkTimeout; got != time.Second {
		t.Errorf("expected timeout 1s, got %v", got)
	}
}

func TestChecker_ReadinessAggregation(t *testing.T) {
	failing := func(context.Context) error { return errors.New("down") }
	passing := func(context.Context) error { return nil }

	tests := []struct {
		name     string
		setup    func(c *Checker)
		expected string
	}{
		{
			name:     "no checks",
			setup:    func(c *Checker) {},
			expected: StatusReady,
		},
		{
			name: "all passing",
			setup: func(c *Checker) {
				c.RegisterCheck("a", passing)
				c.Register("b", passing, Advisory)
			},
			expected: StatusReady,
		},
		{
			name: "advisory failing",
			setup: func(c *Checker) {
				c.RegisterCheck("a", passing)
				c.Register("b", failing, Advisory)
			},
			expected: StatusDegraded,
		},
		{
			name: "required failing",
			setup: func(c *Checker) {
				c.RegisterCheck("a", failing)
				c.Register("b", failing, Advisory)
			},
			expected: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			tt.setup(c)

			status := c.CheckReadiness(context.Background())
			if status.Status != tt.expected {
				t.Errorf("expected status %q, got %q", tt.expected, status.Status)
			}
		})
	}
}

func TestChecker_ResultDetails(t *testing.T) {
	c := New(time.Second)
	c.Register("storage", func(context.Context) error { return errors.New("locked") }, Advisory)

	status := c.CheckReadiness(context.Background())
	result := status.Checks["storage"]
	if result.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %q", result.Status)
	}
	if result.Message != "locked" {
		t.Errorf("expected message %q, got %q", "locked", result.Message)
	}
	if !result.Advisory {
		t.Error("expected advisory flag")
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	c.RegisterCheck("slow", func(context.Context) error {
		<-block
		return nil
	})

	status := c.CheckReadiness(context.Background())
	if status.Checks["slow"].Message != ErrCheckTimeout.Error() {
		t.Errorf("expected timeout message, got %q", status.Checks["slow"].Message)
	}
	if status.Ready() {
		t.Error("expected not ready")
	}
}

func TestChecker_UnregisterAndList(t *testing.T) {
	c := New(0)
	c.RegisterCheck("b", func(context.Context) error { return nil })
	c.RegisterCheck("a", func(context.Context) error { return nil })

	names := c.ListChecks()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}

	c.UnregisterCheck("a")
	if names := c.ListChecks(); len(names) != 1 {
		t.Errorf("expected one check left, got %v", names)
	}
}

func TestChecker_LivenessUsesClock(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := New(0).WithClock(clock.Fake(at))

	status := c.CheckLiveness(context.Background())
	if status.Status != StatusOK {
		t.Errorf("expected ok, got %q", status.Status)
	}
	if !status.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, status.Timestamp)
	}
}

func TestSocketCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.sock")
	check := SocketCheck(path)

	if err := check(context.Background()); err == nil {
		t.Fatal("expected error with no listener")
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	if err := check(context.Background()); err != nil {
		t.Errorf("SocketCheck() failed: %v", err)
	}
}

func TestNonEmptyCheck(t *testing.T) {
	n := 0
	check := NonEmptyCheck("policy entries", func() int { return n })

	if err := check(context.Background()); err == nil || err.Error() != "no policy entries loaded" {
		t.Errorf("expected empty error, got %v", err)
	}
	n = 3
	if err := check(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

type readyFunc func(ctx context.Context) error

func (f readyFunc) Ready(ctx context.Context) error { return f(ctx) }

func TestMount(t *testing.T) {
	c := New(time.Second)
	c.Register("storage", ReadyCheck(readyFunc(func(context.Context) error {
		return errors.New("unavailable")
	})), Advisory)

	r := chi.NewRouter()
	c.Mount(r, "1.2.3", "abc", "today")

	tests := []struct {
		method string
		path   string
		code   int
		status string
	}{
		{http.MethodGet, "/health", http.StatusOK, StatusOK},
		{http.MethodGet, "/ready", http.StatusOK, StatusDegraded},
		{http.MethodHead, "/ready", http.StatusOK, ""},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			if tt.status == "" {
				return
			}
			var body HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if body.Status != tt.status {
				t.Errorf("expected status %q, got %q", tt.status, body.Status)
			}
		})
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc" {
		t.Errorf("unexpected version info %+v", info)
	}
}

func TestReadinessHandler_Unhealthy(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("transport", func(context.Context) error { return errors.New("no socket") })

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
