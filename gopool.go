// Package gopool implements a generic, asynchronous, non-blocking object
// pool: a component that manages the lifecycle (allocation, lending,
// reset, eviction, destruction) of a bounded or unbounded set of reusable
// resources shared by many concurrent borrowers.
//
// # Design rationale
//
// The hard part is the concurrent drain/serve core: a wait-free MPSC
// hand-off between a queue of idle resources, a queue of pending
// borrowers, and an allocation-permit counter, together with the
// per-resource state machine (allocated -> acquired -> released |
// invalidated -> destroyed), eviction policy, timeout and cancellation
// handling. Everything else — builder ergonomics, metrics reporting,
// pre-built eviction predicates, logging — is an external collaborator
// whose only relevance is the contract it presents to the core.
//
// # Concurrency model
//
// DrainCore is a single-threaded cooperative loop serialised by a
// work-in-progress counter, not a mutex: any call site that enqueues work
// (borrower registration, resource release, destroy completion, explicit
// wakeup) bumps the counter and, if it was the one to take it from 0,
// runs the matching loop until no further work remains. No goroutine
// blocks inside the core; suspension points (allocator invocation,
// release/destroy handlers, acquisition executor hop, borrower delivery)
// are all asynchronous and re-enter the core via their own completions.
//
// # Invariants
//
//   - acquiredCount always equals the number of PooledRefs handed to a
//     borrower and not yet released or invalidated.
//   - |idle| + |acquired| never exceeds the allocation strategy's total
//     granted permits.
//   - Once Shutdown has run, no new borrower is served; every
//     subsequently arriving Acquire fails with ErrShutdown, and every ref
//     that was idle at shutdown time is destroyed exactly once.
package gopool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pool is the central resource manager. It is safe for concurrent use by
// multiple goroutines. The zero value is not usable; always construct via
// New.
type Pool[T any] struct {
	// 64-bit fields accessed with atomics must be at the top of the
	// struct to guarantee alignment on 32-bit architectures — the same
	// comment alpha-sql/pool/pool.go carries for the same reason.
	acquiredCount atomic.Int64
	pendingCount  atomic.Int64

	cfg     Config[T]
	idle    *idleStore[T]
	pending pendingStore[T]

	wip      atomic.Int32
	disposed atomic.Bool

	// allocWG tracks allocator/destructor goroutines still in flight so
	// Shutdown can block until they've all settled, mirroring the
	// teacher's destructWG in pool/pool.go.
	allocWG sync.WaitGroup

	// baseCtx is the parent context passed to Allocator/DestroyHandler
	// invocations that aren't tied to any single borrower (overgrant
	// allocation, idle eviction). It is cancelled once by Shutdown, mirroring alpha-sql/pool.go's baseAcquireCtx /
	// cancelBaseAcquireCtx pair.
	baseCtx       context.Context
	cancelBaseCtx context.CancelFunc
}

// New constructs a Pool from cfg. It does not pre-allocate anything; call
// Warmup explicitly to pre-allocate up to the allocation strategy's Min().
func New[T any](cfg Config[T]) (*Pool[T], error) {
	if err := cfg.ValidateAndDefault(); err != nil {
		return nil, err
	}
	p := &Pool[T]{cfg: cfg, idle: newIdleStore[T]()}
	p.baseCtx, p.cancelBaseCtx = context.WithCancel(context.Background())
	switch cfg.PendingOrder {
	case LIFO:
		p.pending = newLIFOPendingStore[T]()
	case AFFINITY:
		p.pending = newAffinityPendingStore[T]()
	default:
		p.pending = newFIFOPendingStore[T]()
	}
	return p, nil
}

func (p *Pool[T]) clockNow() time.Time {
	return p.cfg.Clock.Now()
}

// IdleSize is a snapshot of the number of resources currently idle.
func (p *Pool[T]) IdleSize() int {
	return p.idle.size()
}

// AcquiredSize is a snapshot of the number of resources currently
// acquired by a borrower.
func (p *Pool[T]) AcquiredSize() int {
	return int(p.acquiredCount.Load())
}

// PendingSize is a snapshot of the number of borrowers currently waiting.
func (p *Pool[T]) PendingSize() int {
	return int(p.pendingCount.Load())
}

// isDisposed reports whether Shutdown has run.
func (p *Pool[T]) isDisposed() bool {
	return p.disposed.Load()
}
