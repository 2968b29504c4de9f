package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/transport"
	"mercator-hq/relay/pkg/transport/status"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// call is the state of one Download.
type call struct {
	svc     *Service
	ctx     context.Context
	req     *transport.DownloadRequest
	stream  ResponseStream
	cfg     Config
	key     networkusage.ConnectionKey
	logger  *slog.Logger
	span    trace.Span
	started time.Time
	mode    Mode

	state      atomic.Int32
	total      atomic.Int64
	finishOnce sync.Once
}

func (c *call) setState(s State) {
	c.state.Store(int32(s))
}

// fetchAndStream runs on the executor.
func (c *call) fetchAndStream() {
	c.setState(StateFetching)
	if c.stream.IsCancelled() {
		c.cancelled(nil)
		return
	}

	fetchCtx, fetchSpan := c.svc.tracer.Start(c.ctx, "relay.Fetch", trace.WithSpanKind(trace.SpanKindClient))
	resp, err := c.svc.fetcher.Fetch(fetchCtx, c.req.URL, c.req.Headers)
	if err != nil {
		tracing.SetError(fetchSpan, err)
		tracing.SetStatus(fetchSpan, err)
		fetchSpan.End()
		if c.stream.IsCancelled() {
			c.cancelled(err)
			return
		}
		c.logger.Warn("upstream fetch failed", "error", err)
		c.fail(status.Newf(status.Unavailable, "failed to fetch url: %v", err))
		return
	}
	tracing.SetResponseCode(fetchSpan, resp.StatusCode)
	fetchSpan.End()

	headers := transport.ResponseHeaders{
		Code:    resp.StatusCode,
		Headers: transport.HeaderProperties(resp.Header),
	}
	c.logger.Info("responding with header information", "code", resp.StatusCode)
	if err := c.stream.SendHeaders(headers); err != nil {
		resp.Body.Close()
		c.sendFailed(err)
		return
	}
	c.setState(StateHeadersSent)

	if resp.Body == nil || resp.Body == http.NoBody {
		c.logger.Info("received an empty body, completing")
		c.complete()
		return
	}

	sink, hasSink := transport.SinkFromContext(c.ctx)
	switch {
	case c.cfg.DirectSinkEnabled && hasSink:
		c.mode = ModeSink
		c.push(resp.Body, sink)
	case c.cfg.ReadyHandlerEnabled:
		c.mode = ModeReady
		h := &readyHandler{c: c, body: resp.Body, buf: make([]byte, BufferLength)}
		c.stream.SetReadyCallback(func() { c.svc.executor.Execute(h.onReady) })
		// A cancelled stream may never become ready again.
		context.AfterFunc(c.ctx, func() { c.svc.executor.Execute(h.onReady) })
		h.onReady()
	default:
		c.mode = ModePush
		c.push(resp.Body, nil)
	}
}

// push copies the body in a loop, either to sink or in-band.
func (c *call) push(body io.ReadCloser, sink *os.File) {
	defer body.Close()
	if sink != nil {
		defer sink.Close()
	}
	c.setState(StateStreaming)

	buf := make([]byte, BufferLength)
	for {
		if c.stream.IsCancelled() {
			c.cancelled(nil)
			return
		}
		n, readErr := fill(body, buf)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			c.readFailed(readErr)
			return
		}
		if n > 0 {
			if sink != nil {
				if _, err := sink.Write(buf[:n]); err != nil {
					c.logger.Warn("failed writing to sink", "error", err)
					c.fail(status.Newf(status.Internal, "failed to write sink: %v", err))
					return
				}
				c.total.Add(int64(n))
			} else {
				if err := c.stream.SendChunk(buf[:n]); err != nil {
					c.sendFailed(err)
					return
				}
				c.advance(n)
			}
		}
		if readErr != nil {
			c.complete()
			return
		}
	}
}

// advance counts n in-band bytes and pauses when the total crosses a
// throttle boundary.
func (c *call) advance(n int) {
	total := c.total.Add(int64(n))
	previous := total - int64(n)
	if c.cfg.ThrottleMs > 0 && previous/throttleBoundary < total/throttleBoundary {
		c.logger.Debug("throttling download", "bytes", total)
		c.svc.metrics.Throttled()
		c.svc.clock.Sleep(time.Duration(c.cfg.ThrottleMs) * time.Millisecond)
	}
}

func (c *call) complete() {
	err := c.stream.Complete()
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrAlreadyTerminated):
		// Queued frames may have been dropped, so a cancel that won the
		// race is not a success.
		if c.stream.IsCancelled() {
			c.cancelled(err)
			return
		}
		c.logger.Debug("completion raced with termination", "error", err)
	default:
		c.logger.Error("failed to complete call", "error", err)
		c.finish(StateFailed, networkusage.StatusFailed)
		return
	}
	c.finish(StateCompleted, networkusage.StatusSucceeded)
}

func (c *call) fail(st *status.Status) {
	if err := c.stream.Fail(st.Err()); err != nil && !errors.Is(err, transport.ErrAlreadyTerminated) {
		c.logger.Error("failed to send failure", "error", err)
	}
	c.finish(StateFailed, networkusage.StatusFailed)
}

func (c *call) cancelled(cause error) {
	c.logger.Warn("call cancelled by client", "bytes", c.total.Load(), "error", cause)
	c.finish(StateCancelled, networkusage.StatusFailed)
}

func (c *call) sendFailed(err error) {
	if c.stream.IsCancelled() {
		c.cancelled(err)
		return
	}
	c.logger.Warn("failed sending to client", "error", err)
	c.fail(status.Newf(status.Internal, "failed to send response: %v", err))
}

func (c *call) readFailed(err error) {
	if c.stream.IsCancelled() {
		c.cancelled(err)
		return
	}
	c.logger.Warn("failed reading response body", "error", err)
	c.fail(status.Newf(status.Unavailable, "failed to read response body: %v", err))
}

// finish records the terminal outcome once.
func (c *call) finish(state State, audit networkusage.Status) {
	c.finishOnce.Do(func() {
		c.setState(state)
		total := c.total.Load()
		elapsed := c.svc.clock.Now().Sub(c.started)
		c.svc.metrics.CallFinished(state, c.mode, total, elapsed)
		c.logger.Info("download finished",
			"state", state.String(),
			"mode", string(c.mode),
			"bytes", total,
			"duration_ms", elapsed.Milliseconds(),
		)
		c.audit(audit, total)

		tracing.SetOutcome(c.span, state.String(), string(c.mode), total)
		if state == StateCompleted {
			c.span.SetStatus(codes.Ok, "")
		} else {
			c.span.SetStatus(codes.Error, state.String())
		}
		c.span.End()
	})
}

// audit inserts one entity for the call when the gate asks for it and the
// URL resolves to a policy entry.
func (c *call) audit(st networkusage.Status, size int64) {
	repo := c.svc.repo
	if !repo.ShouldLogNetworkUsage(networkusage.ConnectionTypeHTTP, c.key) {
		return
	}
	details, ok := repo.PolicyEntry(networkusage.ConnectionTypeHTTP, c.key)
	if !ok {
		return
	}
	entity, err := networkusage.NewHTTPEntity(details, st, size, c.req.URL, networkusage.WithClock(c.svc.clock))
	if err != nil {
		c.logger.Warn("failed to build network usage entity", "error", err)
		return
	}
	if err := repo.Insert(context.WithoutCancel(c.ctx), entity); err != nil {
		c.logger.Warn("failed to record network usage", "error", err)
	}
}

// readyHandler produces chunks while the stream is ready and holds at most
// one chunk while it is not. onReady may be invoked from any goroutine, and
// re-entrantly: a call that arrives while production runs only marks that
// another pass is needed.
type readyHandler struct {
	c    *call
	body io.ReadCloser

	mu      sync.Mutex
	running bool
	rerun   bool
	done    bool

	// Owned by the running pass.
	buf     []byte
	pending int
	eof     bool
}

func (h *readyHandler) onReady() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	if h.running {
		h.rerun = true
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	for {
		finished := h.produce()

		h.mu.Lock()
		if finished {
			h.done = true
		}
		if h.done || !h.rerun {
			h.running = false
			h.mu.Unlock()
			return
		}
		h.rerun = false
		h.mu.Unlock()
	}
}

// produce returns true once the call reached a terminal state.
func (h *readyHandler) produce() bool {
	c := h.c
	c.setState(StateStreaming)
	for {
		if h.pending == 0 {
			if h.eof {
				h.release()
				c.complete()
				return true
			}
			if c.stream.IsCancelled() {
				h.release()
				c.cancelled(nil)
				return true
			}
			n, err := fill(h.body, h.buf)
			if err != nil && !errors.Is(err, io.EOF) {
				h.release()
				c.readFailed(err)
				return true
			}
			h.pending = n
			h.eof = err != nil
		} else if c.stream.IsCancelled() {
			h.release()
			c.cancelled(nil)
			return true
		}

		if h.pending == 0 {
			continue
		}
		if !c.stream.IsReady() {
			return false
		}
		if err := c.stream.SendChunk(h.buf[:h.pending]); err != nil {
			h.release()
			c.sendFailed(err)
			return true
		}
		n := h.pending
		h.pending = 0
		c.advance(n)
	}
}

func (h *readyHandler) release() {
	h.body.Close()
}

// fill reads until buf is full or the body ends. At the end of the body it
// returns the bytes read with io.EOF.
func fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
