// Package repository implements the production networkusage.Repository:
// a policy-table gate in front of an asynchronously written audit log.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/relay/pkg/configreader"
	"mercator-hq/relay/pkg/flags"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/networkusage/policy"
	"mercator-hq/relay/pkg/safeinit"
)

// Metrics receives gate and audit events. A nil Metrics is ignored.
type Metrics interface {
	GateDecision(connectionType, decision string)
	AuditRecorded(connectionType, status string)
	AuditDropped(reason string)
}

type noMetrics struct{}

func (noMetrics) GateDecision(string, string)  {}
func (noMetrics) AuditRecorded(string, string) {}
func (noMetrics) AuditDropped(string)          {}

// Options configures a LogRepository.
type Options struct {
	// Table is the policy table. Required.
	Table *policy.CachedTable

	// OpenStorage opens the audit storage. It is called lazily, at most
	// once at a time, and again after a failure. Required.
	OpenStorage func(ctx context.Context) (networkusage.Storage, error)

	// Config is the flag snapshot reader. Required.
	Config *configreader.Reader[Config]

	// Capability gates audit logging on the storage being usable. When
	// nil, a capability that opens the storage is created.
	Capability *flags.Capability

	Recorder RecorderConfig
	Metrics  Metrics
}

// LogRepository is the admission and audit gate.
type LogRepository struct {
	table      *policy.CachedTable
	config     *configreader.Reader[Config]
	capability *flags.Capability
	storage    *safeinit.Initializer[networkusage.Storage]
	open       func(ctx context.Context) (networkusage.Storage, error)
	recorder   *recorder
	metrics    Metrics
	logger     *slog.Logger
}

var _ networkusage.Repository = (*LogRepository)(nil)

// New creates a LogRepository and starts its recorder.
func New(opts Options) (*LogRepository, error) {
	if opts.Table == nil {
		return nil, fmt.Errorf("policy table cannot be nil")
	}
	if opts.OpenStorage == nil {
		return nil, fmt.Errorf("storage opener cannot be nil")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config reader cannot be nil")
	}
	if opts.Metrics == nil {
		opts.Metrics = noMetrics{}
	}

	r := &LogRepository{
		table:   opts.Table,
		config:  opts.Config,
		storage: safeinit.New[networkusage.Storage]("network usage storage"),
		open:    opts.OpenStorage,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "networkusage.repository"),
	}
	r.capability = opts.Capability
	if r.capability == nil {
		r.capability = flags.NewCapability("network-usage-storage", func(ctx context.Context) error {
			_, err := r.resolveStorage(ctx)
			return err
		})
	}
	r.recorder = newRecorder(r.resolveStorage, opts.Recorder, opts.Metrics)
	return r, nil
}

func (r *LogRepository) resolveStorage(ctx context.Context) (networkusage.Storage, error) {
	return r.storage.Initialize(ctx, r.open).Wait(ctx)
}

// IsKnownConnection reports whether key has a policy entry.
func (r *LogRepository) IsKnownConnection(t networkusage.ConnectionType, key networkusage.ConnectionKey) bool {
	_, ok := r.table.Match(t, key)
	return ok
}

// ShouldRejectRequest rejects every connection without a policy entry.
func (r *LogRepository) ShouldRejectRequest(t networkusage.ConnectionType, key networkusage.ConnectionKey) bool {
	reject := !r.IsKnownConnection(t, key)
	decision := "allow"
	if reject {
		decision = "reject"
	}
	r.metrics.GateDecision(t.String(), decision)
	return reject
}

// ShouldLogNetworkUsage reports whether the outcome of a connection is
// audited. It is independent of the reject decision.
func (r *LogRepository) ShouldLogNetworkUsage(t networkusage.ConnectionType, key networkusage.ConnectionKey) bool {
	cfg := r.config.GetConfig()
	if !cfg.Enabled {
		return false
	}
	if !r.capability.Available(context.Background()) {
		return false
	}
	return cfg.LogUnrecognized || r.IsKnownConnection(t, key)
}

// PolicyEntry returns the details of the first policy entry for key.
func (r *LogRepository) PolicyEntry(t networkusage.ConnectionType, key networkusage.ConnectionKey) (networkusage.ConnectionDetails, bool) {
	e, ok := r.table.Match(t, key)
	if !ok {
		return networkusage.ConnectionDetails{}, false
	}
	return e.Details, true
}

// Entry returns the full policy entry for key, including the feature
// name and description.
func (r *LogRepository) Entry(t networkusage.ConnectionType, key networkusage.ConnectionKey) (policy.Entry, bool) {
	return r.table.Match(t, key)
}

// Insert queues entity for the recorder.
func (r *LogRepository) Insert(ctx context.Context, entity *networkusage.Entity) error {
	if entity == nil {
		return errors.New("entity cannot be nil")
	}
	if entity.CreationTime.IsZero() {
		return networkusage.NewValidationError("creation_time", "must be set")
	}
	return r.recorder.enqueue(ctx, entity)
}

// DeleteAllBefore removes records created before t.
func (r *LogRepository) DeleteAllBefore(ctx context.Context, t time.Time) (int64, error) {
	st, err := r.resolveStorage(ctx)
	if err != nil {
		return 0, err
	}
	return st.DeleteBefore(ctx, t)
}

// List returns records matching q.
func (r *LogRepository) List(ctx context.Context, q *networkusage.Query) ([]*networkusage.Entity, error) {
	st, err := r.resolveStorage(ctx)
	if err != nil {
		return nil, err
	}
	return st.Query(ctx, q)
}

// Ready returns nil once the storage has been opened.
func (r *LogRepository) Ready(ctx context.Context) error {
	if err := r.storage.CheckInitialized(); err != nil {
		if _, openErr := r.resolveStorage(ctx); openErr != nil {
			return openErr
		}
	}
	return nil
}

// Close drains queued records and closes the storage if it was opened.
func (r *LogRepository) Close() error {
	r.recorder.close()

	st, ok := r.storage.Value()
	r.storage.Reset()
	if !ok {
		return nil
	}
	return st.Close()
}
