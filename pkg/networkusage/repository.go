package networkusage

import (
	"context"
	"time"
)

// Repository is the admission and audit gate consulted before and after
// every network access.
type Repository interface {
	// Insert records entity. It may persist asynchronously.
	Insert(ctx context.Context, entity *Entity) error

	// IsKnownConnection reports whether key has a policy entry.
	IsKnownConnection(t ConnectionType, key ConnectionKey) bool

	// ShouldRejectRequest reports whether the access must not proceed.
	ShouldRejectRequest(t ConnectionType, key ConnectionKey) bool

	// ShouldLogNetworkUsage reports whether the outcome should be audited.
	ShouldLogNetworkUsage(t ConnectionType, key ConnectionKey) bool

	// PolicyEntry resolves key to the connection details of the first
	// matching policy entry.
	PolicyEntry(t ConnectionType, key ConnectionKey) (ConnectionDetails, bool)

	// DeleteAllBefore removes records created before t.
	DeleteAllBefore(ctx context.Context, t time.Time) (int64, error)

	// List returns audited records matching q.
	List(ctx context.Context, q *Query) ([]*Entity, error)

	// Close flushes pending records and releases storage.
	Close() error
}

// NoOp is a Repository that knows no connections, rejects nothing and
// records nothing.
type NoOp struct{}

var _ Repository = NoOp{}

func (NoOp) Insert(context.Context, *Entity) error                    { return nil }
func (NoOp) IsKnownConnection(ConnectionType, ConnectionKey) bool     { return false }
func (NoOp) ShouldRejectRequest(ConnectionType, ConnectionKey) bool   { return false }
func (NoOp) ShouldLogNetworkUsage(ConnectionType, ConnectionKey) bool { return false }
func (NoOp) PolicyEntry(ConnectionType, ConnectionKey) (ConnectionDetails, bool) {
	return ConnectionDetails{}, false
}
func (NoOp) DeleteAllBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (NoOp) List(context.Context, *Query) ([]*Entity, error)          { return []*Entity{}, nil }
func (NoOp) Close() error                                              { return nil }
