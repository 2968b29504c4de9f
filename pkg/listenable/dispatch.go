package listenable

import "mercator-hq/relay/pkg/workerpool"

// DispatchKind selects how a Multicast delivers notifications.
type DispatchKind int

const (
	// DispatchImmediate invokes listeners synchronously on the notifying
	// goroutine, in registration order.
	DispatchImmediate DispatchKind = iota

	// DispatchDeferred submits each listener invocation to an executor.
	// No ordering is guaranteed across listeners or across Notify calls.
	DispatchDeferred
)

// String returns the policy name.
func (k DispatchKind) String() string {
	switch k {
	case DispatchImmediate:
		return "immediate"
	case DispatchDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Dispatcher is the dispatch policy of a Multicast. The zero value is
// Immediate.
type Dispatcher struct {
	kind     DispatchKind
	executor workerpool.Executor
}

// Immediate returns the synchronous dispatch policy.
func Immediate() Dispatcher {
	return Dispatcher{kind: DispatchImmediate}
}

// Deferred returns a policy that hands every listener invocation to
// executor. A nil executor degrades to Immediate.
func Deferred(executor workerpool.Executor) Dispatcher {
	if executor == nil {
		return Immediate()
	}
	return Dispatcher{kind: DispatchDeferred, executor: executor}
}

// Kind reports the dispatch policy.
func (d Dispatcher) Kind() DispatchKind {
	return d.kind
}

func (d Dispatcher) dispatch(task func()) {
	if d.kind == DispatchDeferred {
		d.executor.Execute(task)
		return
	}
	task()
}
