package gopool

import (
	"context"
	"sync/atomic"
	"time"
)

type refState int32

const (
	stateIdle refState = iota
	stateAcquired
	stateReleased
	stateInvalidated
	stateDestroyed
)

// PooledRefMetadata is the read-only view of a PooledRef's bookkeeping
// passed to an EvictionPredicate. It is a separate type from PooledRef so
// that predicates can't reach back into release/invalidate (spec §4.2
// calls these "inspection accessors").
type PooledRefMetadata struct {
	AllocationTimestamp time.Time
	IdleSince           time.Duration
	AcquireCount        int64
}

// PooledRef is the ownership record for one live resource and the handle
// returned to a borrower (spec §3's "Ref"). It is exclusively owned by
// whoever holds it: the pool while IDLE, a borrower while ACQUIRED.
type PooledRef[T any] struct {
	pool     *Pool[T]
	resource T

	state                    atomic.Int32
	allocationTimestamp      time.Time
	lastReleaseTimestampNano atomic.Int64
	acquireCount             atomic.Int64

	// affinity is the Executor of whichever borrower last held this
	// resource. Consulted by an AFFINITY-ordered pending store on reuse
	// (spec §4.3 "Affinity variant"); unused by FIFO/LIFO.
	affinity Executor

	// decremented is the one-shot flag guarding the "acquiredCount
	// decremented exactly once per acquisition" invariant (spec §4.2's
	// "Key invariant"). It is CAS'd by whichever of the release/invalidate
	// paths observes end-of-use first, and cleared each time the ref is
	// handed out again from the idle store.
	decremented atomic.Bool
}

func newPooledRef[T any](pool *Pool[T], resource T, now time.Time) *PooledRef[T] {
	r := &PooledRef[T]{
		pool:                pool,
		resource:            resource,
		allocationTimestamp: now,
	}
	r.state.Store(int32(stateAcquired))
	r.acquireCount.Store(1)
	return r
}

// Value returns the underlying resource. The core never inspects it; this
// accessor is how the borrower does.
func (r *PooledRef[T]) Value() T {
	return r.resource
}

// AllocationTimestamp is when the underlying resource was created.
func (r *PooledRef[T]) AllocationTimestamp() time.Time {
	return r.allocationTimestamp
}

// IdleSince reports how long the ref has been sitting idle. It is only
// meaningful while the ref is actually IDLE; before the first release it
// returns 0.
func (r *PooledRef[T]) IdleSince() time.Duration {
	ts := r.lastReleaseTimestampNano.Load()
	if ts == 0 {
		return 0
	}
	return r.pool.clockNow().Sub(time.Unix(0, ts))
}

// AcquireCount starts at 1 when the resource is allocated and grows by one
// each time it is handed out again from the idle store (across recycles).
// A resource pre-allocated into the idle store by Warmup or an overgrant
// therefore reports 2 on its first hand-out.
func (r *PooledRef[T]) AcquireCount() int64 {
	return r.acquireCount.Load()
}

func (r *PooledRef[T]) metadata() PooledRefMetadata {
	return PooledRefMetadata{
		AllocationTimestamp: r.allocationTimestamp,
		IdleSince:           r.IdleSince(),
		AcquireCount:        r.AcquireCount(),
	}
}

// markEndOfUse returns true exactly once per acquisition of this PooledRef,
// the first time it is called from either the Release or Invalidate path. Callers that get false must not
// decrement acquiredCount again (spec §4.2's key invariant).
func (r *PooledRef[T]) markEndOfUse() bool {
	return r.decremented.CompareAndSwap(false, true)
}

// Release offers the resource back to the pool: reset, then (if the
// resource isn't evicted or the pool isn't disposed) recycling, else
// destruction. If already terminal it completes immediately, matching the
// idempotence spec §4.2 requires.
func (r *PooledRef[T]) Release(ctx context.Context) error {
	return r.pool.releaseRef(ctx, r)
}

// Invalidate forces the resource straight to destruction, bypassing reset
// and the eviction predicate. The first caller transitions state;
// subsequent calls are no-ops, per spec §4.2.
func (r *PooledRef[T]) Invalidate(ctx context.Context) error {
	return r.pool.invalidateRef(ctx, r)
}

func (r *PooledRef[T]) casState(from, to refState) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

func (r *PooledRef[T]) loadState() refState {
	return refState(r.state.Load())
}
