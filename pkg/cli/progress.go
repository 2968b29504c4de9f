package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// ByteProgress renders download progress in bytes. A negative total means
// the size is unknown and only the running count is shown.
type ByteProgress struct {
	mu       sync.Mutex
	total    int64
	current  int64
	started  time.Time
	lastDraw time.Time
	writer   io.Writer
	interval time.Duration
	now      func() time.Time
}

// NewProgressReporter creates a byte progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) *ByteProgress {
	if w == nil {
		w = os.Stderr
	}
	return &ByteProgress{
		writer:   w,
		interval: 100 * time.Millisecond,
		now:      time.Now,
	}
}

// Start resets the reporter for a transfer of total bytes.
func (p *ByteProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = p.now()
	p.render()
}

// Update sets the number of bytes transferred. Redraws are rate limited.
func (p *ByteProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if p.now().Sub(p.lastDraw) >= p.interval {
		p.render()
	}
}

// Finish draws the final state and ends the line.
func (p *ByteProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total >= 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.writer)
}

// Error reports an error during progress.
func (p *ByteProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\nerror: %v\n", err)
}

// Write counts len(b) bytes, so a ByteProgress can sit behind an
// io.TeeReader or io.MultiWriter.
func (p *ByteProgress) Write(b []byte) (int, error) {
	p.mu.Lock()
	current := p.current + int64(len(b))
	p.mu.Unlock()
	p.Update(current)
	return len(b), nil
}

func (p *ByteProgress) render() {
	p.lastDraw = p.now()
	elapsed := p.lastDraw.Sub(p.started).Seconds()
	rate := ""
	if elapsed > 0 {
		rate = humanize.IBytes(uint64(float64(p.current)/elapsed)) + "/s"
	}

	if p.total <= 0 {
		fmt.Fprintf(p.writer, "\r%s %s", humanize.IBytes(uint64(p.current)), rate)
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	const barWidth = 30
	filled := min(int(barWidth*percent/100), barWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(p.writer, "\r[%s] %5.1f%% %s / %s %s",
		bar, percent, humanize.IBytes(uint64(p.current)), humanize.IBytes(uint64(p.total)), rate)
}
