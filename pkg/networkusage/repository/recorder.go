package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/relay/pkg/networkusage"
)

// RecorderConfig configures the asynchronous writer.
type RecorderConfig struct {
	// AsyncBuffer is the size of the write queue.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds both enqueueing and each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{AsyncBuffer: 1000, WriteTimeout: 5 * time.Second}
}

// recorder drains a bounded queue of entities into storage on one
// goroutine.
type recorder struct {
	resolve func(ctx context.Context) (networkusage.Storage, error)
	config  RecorderConfig
	metrics Metrics
	queue   chan *networkusage.Entity
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func newRecorder(resolve func(ctx context.Context) (networkusage.Storage, error), cfg RecorderConfig, m Metrics) *recorder {
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	r := &recorder{
		resolve: resolve,
		config:  cfg,
		metrics: m,
		queue:   make(chan *networkusage.Entity, cfg.AsyncBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "networkusage.recorder"),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// enqueue returns immediately unless the queue is full, in which case it
// waits up to WriteTimeout.
func (r *recorder) enqueue(ctx context.Context, e *networkusage.Entity) error {
	select {
	case <-r.done:
		r.metrics.AuditDropped("shutdown")
		return networkusage.NewRecorderError(e.ConnectionDetails.Key.String(), context.Canceled)
	default:
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.queue <- e:
		return nil
	case <-timer.C:
		r.logger.Error("network usage queue full, dropping record",
			"key", e.ConnectionDetails.Key.String(),
			"queue_capacity", r.config.AsyncBuffer,
		)
		r.metrics.AuditDropped("queue_full")
		return networkusage.NewRecorderError(e.ConnectionDetails.Key.String(), context.DeadlineExceeded)
	case <-ctx.Done():
		r.metrics.AuditDropped("cancelled")
		return networkusage.NewRecorderError(e.ConnectionDetails.Key.String(), ctx.Err())
	case <-r.done:
		r.metrics.AuditDropped("shutdown")
		return networkusage.NewRecorderError(e.ConnectionDetails.Key.String(), context.Canceled)
	}
}

func (r *recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-r.done:
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *recorder) write(e *networkusage.Entity) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	st, err := r.resolve(ctx)
	if err == nil {
		err = st.Store(ctx, e)
	}
	if err != nil {
		r.logger.Error("failed to store network usage",
			"key", e.ConnectionDetails.Key.String(),
			"error", err,
		)
		r.metrics.AuditDropped("storage_error")
		return
	}

	duration := time.Since(start)
	r.metrics.AuditRecorded(e.ConnectionDetails.Type.String(), e.Status.String())
	r.logger.Debug("network usage recorded",
		"id", e.ID,
		"type", e.ConnectionDetails.Type.String(),
		"status", e.Status.String(),
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow network usage write",
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// close drains the queue and waits for the worker.
func (r *recorder) close() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}
