package gopool

import (
	"context"
	"sync/atomic"
	"time"
)

type borrowerState int32

const (
	borrowerWaiting borrowerState = iota
	borrowerCancelled
	borrowerDelivered
	borrowerFailed
)

type borrowResult[T any] struct {
	ref *PooledRef[T]
	err error
}

// pendingBorrower is one acquire subscription waiting for a resource
// (spec §4.4). Its transitions out of WAITING are one-shot and mutually
// exclusive, enforced by CAS on state.
type pendingBorrower[T any] struct {
	ctx          context.Context
	sink         chan borrowResult[T]
	subscribedAt time.Time
	deadline     time.Time
	timer        *time.Timer
	state        atomic.Int32
	// executor is this subscription's affinity key (spec §4.3 "Affinity
	// variant"), set via AcquireOn; nil for a plain Acquire. It is
	// unrelated to Config.AcquisitionExecutor, which forces delivery onto
	// a fixed executor regardless of affinity.
	executor Executor
}

func newPendingBorrower[T any](ctx context.Context, now time.Time, timeout time.Duration, executor Executor) *pendingBorrower[T] {
	b := &pendingBorrower[T]{
		ctx:          ctx,
		sink:         make(chan borrowResult[T], 1),
		subscribedAt: now,
		executor:     executor,
	}
	if timeout > 0 {
		b.deadline = now.Add(timeout)
	}
	return b
}

// armTimer starts the deadline timer, if any. fire is called once the
// deadline elapses, whatever the borrower's state by then; Acquire's fire
// cancels the borrower with ErrAcquireTimeout only if it is still WAITING.
func (b *pendingBorrower[T]) armTimer(timeout time.Duration, fire func()) {
	if timeout <= 0 {
		return
	}
	b.timer = time.AfterFunc(timeout, fire)
}

func (b *pendingBorrower[T]) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

func (b *pendingBorrower[T]) casState(from, to borrowerState) bool {
	return b.state.CompareAndSwap(int32(from), int32(to))
}

func (b *pendingBorrower[T]) loadState() borrowerState {
	return borrowerState(b.state.Load())
}

// deliver atomically transitions WAITING -> DELIVERED. Returns false if the
// borrower already left WAITING (timed out, cancelled, or raced with
// another delivery attempt); the caller must then return the resource to
// the idle store or roll back its speculative allocation instead of
// leaking it (spec §4.4 "Delivery").
func (b *pendingBorrower[T]) deliver(ref *PooledRef[T]) bool {
	if !b.casState(borrowerWaiting, borrowerDelivered) {
		return false
	}
	b.stopTimer()
	b.sink <- borrowResult[T]{ref: ref}
	return true
}

// fail atomically transitions WAITING -> FAILED and delivers err. Used for
// allocator errors (spec §7's AllocationError) and shutdown.
func (b *pendingBorrower[T]) fail(err error) bool {
	if !b.casState(borrowerWaiting, borrowerFailed) {
		return false
	}
	b.stopTimer()
	b.sink <- borrowResult[T]{err: err}
	return true
}

// cancel atomically transitions WAITING -> CANCELLED, used by both timer
// firing and external ctx cancellation (spec §5 "Cancellation": firing a
// timer is equivalent to external cancellation with a specific payload).
func (b *pendingBorrower[T]) cancel(err error) bool {
	if !b.casState(borrowerWaiting, borrowerCancelled) {
		return false
	}
	b.stopTimer()
	b.sink <- borrowResult[T]{err: err}
	return true
}
