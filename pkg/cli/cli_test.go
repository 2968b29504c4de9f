package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"config", NewConfigError("transport.socket_path", "required"), ExitConfig},
		{"wrapped config", fmt.Errorf("load: %w", NewConfigError("x", "y")), ExitConfig},
		{"command", NewCommandError("fetch", errors.New("refused")), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	cause := errors.New("refused")
	err := NewCommandError("fetch", cause)
	if !errors.Is(err, cause) {
		t.Error("expected CommandError to unwrap to its cause")
	}
	if err.Error() != "command fetch failed: refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, in := range []string{"text", "JSON", "csv"} {
		if _, err := ParseOutputFormat(in); err != nil {
			t.Errorf("ParseOutputFormat(%q) failed: %v", in, err)
		}
	}
	_, err := ParseOutputFormat("junit")
	if ExitCode(err) != ExitConfig {
		t.Errorf("expected config error, got %v", err)
	}
}

func testTable() KeyValues {
	return KeyValues{
		Names:  []string{"Relay__throttle_ms", "Relay__enable_ready_handler"},
		Values: map[string]string{"Relay__throttle_ms": "5", "Relay__enable_ready_handler": "true"},
	}
}

func TestFormatter_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatText).FormatTo(&buf, testTable()); err != nil {
		t.Fatalf("FormatTo() failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[1], "Relay__throttle_ms") {
		t.Errorf("unexpected text output:\n%s", buf.String())
	}

	buf.Reset()
	if err := NewFormatter(FormatText).FormatTo(&buf, "plain"); err != nil {
		t.Fatalf("FormatTo() failed: %v", err)
	}
	if buf.String() != "plain\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).FormatTo(&buf, testTable()); err != nil {
		t.Fatalf("FormatTo() failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"Relay__throttle_ms": "5"`) {
		t.Errorf("unexpected JSON output:\n%s", buf.String())
	}
}

func TestFormatter_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatCSV).FormatTo(&buf, testTable()); err != nil {
		t.Fatalf("FormatTo() failed: %v", err)
	}
	want := "NAME,VALUE\nRelay__throttle_ms,5\nRelay__enable_ready_handler,true\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	if err := NewFormatter(FormatCSV).FormatTo(&buf, 42); err == nil {
		t.Error("expected error for non-table CSV output")
	}
}

func newTestProgress(buf *bytes.Buffer) (*ByteProgress, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProgressReporter(buf)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestByteProgress_KnownTotal(t *testing.T) {
	var buf bytes.Buffer
	p, now := newTestProgress(&buf)

	p.Start(2048)
	*now = now.Add(time.Second)
	p.Write(make([]byte, 1024))
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, " 50.0% 1.0 KiB / 2.0 KiB") {
		t.Errorf("expected half way line in output:\n%q", out)
	}
	if !strings.Contains(out, "100.0% 2.0 KiB / 2.0 KiB") {
		t.Errorf("expected completed line in output:\n%q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("expected Finish to end the line")
	}
}

func TestByteProgress_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	p, now := newTestProgress(&buf)

	p.Start(-1)
	*now = now.Add(time.Second)
	p.Update(3 * 1024 * 1024)
	p.Finish()

	if !strings.Contains(buf.String(), "3.0 MiB 3.0 MiB/s") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestByteProgress_RateLimitsRedraws(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newTestProgress(&buf)

	p.Start(100)
	before := buf.Len()
	for i := int64(1); i <= 50; i++ {
		p.Update(i)
	}
	if buf.Len() != before {
		t.Error("expected updates within the redraw interval to be suppressed")
	}
}

func TestByteProgress_Error(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newTestProgress(&buf)
	p.Error(errors.New("connection reset"))
	if !strings.Contains(buf.String(), "error: connection reset") {
		t.Errorf("got %q", buf.String())
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	default:
	}

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("Kill() failed: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
}
