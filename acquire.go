package gopool

import (
	"context"
	"time"
)

// Acquire borrows one resource, waiting up to timeout for one to become
// available. timeout <= 0 means wait indefinitely, bounded only by ctx
// (SPEC_FULL.md Open Question #2). ctx cancellation ends the wait
// immediately with ctx.Err(); it does not retroactively cancel an
// allocation already dispatched on its behalf, since that allocation may
// already be promised to a different borrower by the time cancellation is
// observed (spec §5 "Cancellation").
func (p *Pool[T]) Acquire(ctx context.Context, timeout time.Duration) (*PooledRef[T], error) {
	return p.acquire(ctx, timeout, nil)
}

// AcquireOn is Acquire with an explicit subscription Executor for affinity
// matching (spec §4.3 "Affinity variant"): a Config.PendingOrder == AFFINITY
// pool prefers reusing a resource last used by this same executor before
// falling back to its global queue. It is equivalent to Acquire on a
// FIFO/LIFO pool, and distinct from Config.AcquisitionExecutor, which forces
// delivery onto a fixed executor regardless of affinity (spec §5, §6).
func (p *Pool[T]) AcquireOn(ctx context.Context, timeout time.Duration, executor Executor) (*PooledRef[T], error) {
	return p.acquire(ctx, timeout, executor)
}

func (p *Pool[T]) acquire(ctx context.Context, timeout time.Duration, affinity Executor) (*PooledRef[T], error) {
	for {
		ref, err := p.acquireOnce(ctx, timeout, affinity)
		if err != nil {
			return nil, err
		}
		if p.revalidateOnAcquire(ctx, ref) {
			return ref, nil
		}
		p.cfg.Logger.Debug().Msg("revalidation failed; discarding resource and retrying acquire")
		_ = p.invalidateRef(ctx, ref)
	}
}

func (p *Pool[T]) acquireOnce(ctx context.Context, timeout time.Duration, affinity Executor) (*PooledRef[T], error) {
	if p.isDisposed() {
		return nil, ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := newPendingBorrower[T](ctx, p.clockNow(), timeout, affinity)
	p.pendingCount.Add(1)
	p.pending.offer(b)

	if timeout > 0 {
		b.armTimer(timeout, func() {
			if b.cancel(ErrAcquireTimeout) {
				p.scheduleDrain()
			}
		})
	}
	p.scheduleDrain()

	select {
	case res := <-b.sink:
		return res.ref, res.err
	case <-ctx.Done():
		if b.cancel(ctx.Err()) {
			p.scheduleDrain()
			return nil, ctx.Err()
		}
		// Lost the race: the drain core already committed a terminal
		// result before the cancel CAS landed. Take it rather than the
		// ctx error, since a resource (or a real failure) is already
		// ours to deal with.
		res := <-b.sink
		return res.ref, res.err
	}
}

// revalidateOnAcquire runs the optional health check for resources coming
// back from reuse. Freshly allocated resources (AcquireCount == 1) skip
// it: there is nothing to have gone stale.
func (p *Pool[T]) revalidateOnAcquire(ctx context.Context, ref *PooledRef[T]) bool {
	if ref.AcquireCount() <= 1 {
		return true
	}
	return p.cfg.Revalidate(ctx, ref.resource)
}
