package flags

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestChangedKeys(t *testing.T) {
	before := map[string]string{"a": "1", "b": "2", "c": "3"}
	after := map[string]string{"a": "1", "b": "20", "d": "4"}

	got := ChangedKeys(before, after)
	want := []string{"b", "c", "d"}
	if !slices.Equal(got, want) {
		t.Errorf("ChangedKeys() = %v, want %v", got, want)
	}
}

func TestFileStore_LoadsScalarsAndLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	content := `
Relay__enable_ready_handler: false
Relay__streaming_throttle_ms: 4000
Relay__ratio: 0.5
Relay__hosts:
  - a.example.com
  - b.example.com
Relay__name: "relay"
Relay__unset: null
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	s, err := NewFileStore(FileStoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	want := map[string]string{
		"Relay__enable_ready_handler":  "false",
		"Relay__streaming_throttle_ms": "4000",
		"Relay__ratio":                 "0.5",
		"Relay__hosts":                 "a.example.com,b.example.com",
		"Relay__name":                  "relay",
	}
	got := s.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("Snapshot() = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := s.Lookup("Relay__unset"); ok {
		t.Error("null value should be absent")
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s, err := NewFileStore(FileStoreConfig{Path: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	if len(s.Snapshot()) != 0 {
		t.Errorf("Snapshot() = %v, want empty", s.Snapshot())
	}
}

func TestFileStore_ReloadNotifiesAndKeepsValuesOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	os.WriteFile(path, []byte("A__x: 1\nA__y: 2\n"), 0o644)

	s, err := NewFileStore(FileStoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	var got [][]string
	s.Listenable().AddListener(func(names []string) { got = append(got, names) })

	os.WriteFile(path, []byte("A__x: 5\nA__y: 2\nB__z: on\n"), 0o644)
	changed, err := s.Reload()
	if err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if !slices.Equal(changed, []string{"A__x", "B__z"}) {
		t.Errorf("Reload() changed = %v", changed)
	}
	if len(got) != 1 {
		t.Fatalf("notifications = %v", got)
	}

	os.WriteFile(path, []byte("A__x: [unterminated\n"), 0o644)
	if _, err := s.Reload(); err == nil {
		t.Fatal("Reload() of malformed file succeeded")
	}
	if v, _ := s.Lookup("A__x"); v != "5" {
		t.Errorf("A__x after failed reload = %q, want 5", v)
	}
	if s.Reloads() != 1 {
		t.Errorf("Reloads() = %d, want 1", s.Reloads())
	}
}

func TestFileStore_WatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	os.WriteFile(path, []byte("A__x: 1\n"), 0o644)

	s, err := NewFileStore(FileStoreConfig{Path: path, Watch: true, DebounceInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	changed := make(chan []string, 4)
	s.Listenable().AddListener(func(names []string) { changed <- names })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx)
	defer s.Close()

	// Allow the watcher to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("A__x: 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	select {
	case names := <-changed:
		if !slices.Equal(names, []string{"A__x"}) {
			t.Errorf("changed = %v", names)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification after rewriting the flag file")
	}
}

func TestEnvStore_OverridesBase(t *testing.T) {
	base := NewMemoryStore(map[string]string{"Relay__a": "1", "Relay__b": "2"})
	env := map[string]string{
		"RELAY_FLAG_RELAY__A": "10",
		"RELAY_FLAG_EXTRA":    "x",
		"UNRELATED":           "y",
	}
	s := NewEnvStore(base)
	s.lookupEnv = func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	s.environ = func() []string {
		var out []string
		for k, v := range env {
			out = append(out, k+"="+v)
		}
		return out
	}

	if v, _ := s.Lookup("Relay__a"); v != "10" {
		t.Errorf("Lookup(Relay__a) = %q, want 10", v)
	}
	if v, _ := s.Lookup("Relay__b"); v != "2" {
		t.Errorf("Lookup(Relay__b) = %q, want 2", v)
	}

	snap := s.Snapshot()
	if snap["Relay__a"] != "10" || snap["Relay__b"] != "2" || snap["EXTRA"] != "x" {
		t.Errorf("Snapshot() = %v", snap)
	}
	if _, ok := snap["UNRELATED"]; ok {
		t.Error("unprefixed variable leaked into snapshot")
	}
}

func TestCapability_ChecksOnce(t *testing.T) {
	calls := 0
	c := NewCapability("audit-db", func(context.Context) error {
		calls++
		return errors.New("read-only filesystem")
	})

	for i := 0; i < 3; i++ {
		if c.Available(context.Background()) {
			t.Fatal("Available() = true for failing check")
		}
	}
	if calls != 1 {
		t.Errorf("check ran %d times, want 1", calls)
	}

	c.Reset()
	c.Available(context.Background())
	if calls != 2 {
		t.Errorf("check ran %d times after Reset, want 2", calls)
	}

	if !NewCapability("none", nil).Available(context.Background()) {
		t.Error("nil check should be available")
	}
}
