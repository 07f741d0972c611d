package gopool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// releaseRef is PooledRef.Release's implementation: reset, then recycle to
// idle unless the pool is disposed, the reset failed, or the eviction
// predicate rejects it, in which case it is destroyed instead (spec §4.2).
func (p *Pool[T]) releaseRef(ctx context.Context, ref *PooledRef[T]) error {
	if !ref.casState(stateAcquired, stateReleased) {
		// Already released, invalidated, or destroyed by someone else:
		// Release is idempotent (spec §4.2).
		return nil
	}
	if ref.markEndOfUse() {
		p.acquiredCount.Add(-1)
	}

	start := p.clockNow()
	err := p.cfg.ReleaseHandler(ctx, ref.resource)
	p.cfg.Metrics.RecordResetLatency(p.clockNow().Sub(start))

	if err != nil {
		p.cfg.Logger.Warn().Err(err).Msg("release handler failed; destroying resource")
		p.destroyRef(ctx, ref)
		return &ReleaseHandlerError{Cause: err}
	}

	if p.isDisposed() || p.evictOnReuse(ref) {
		p.destroyRef(ctx, ref)
		return nil
	}

	ref.state.Store(int32(stateIdle))
	ref.lastReleaseTimestampNano.Store(p.clockNow().UnixNano())
	p.cfg.Metrics.RecordRecycled()
	p.pushIdleOrDestroy(ref)
	p.scheduleDrain()
	return nil
}

// invalidateRef is PooledRef.Invalidate's implementation: skip reset and
// the eviction predicate entirely, go straight to destruction.
func (p *Pool[T]) invalidateRef(ctx context.Context, ref *PooledRef[T]) error {
	if !ref.casState(stateAcquired, stateInvalidated) {
		return nil
	}
	if ref.markEndOfUse() {
		p.acquiredCount.Add(-1)
	}
	p.destroyRef(ctx, ref)
	return nil
}

// destroyRef permanently disposes of ref. It assumes the caller has
// already handled any acquiredCount bookkeeping (idle-path evictions never
// touched acquiredCount in the first place; release/invalidate decrement
// it before calling in). The DestroyHandler runs off the drain core so a
// slow or misbehaving handler never blocks matching; its permit is
// returned and a fresh drain scheduled only once it settles, mirroring
// alpha-sql/pool.go's destructWG-tracked async close.
func (p *Pool[T]) destroyRef(ctx context.Context, ref *PooledRef[T]) {
	ref.state.Store(int32(stateDestroyed))
	if ctx == nil {
		ctx = p.baseCtx
	}
	p.allocWG.Add(1)
	go func() {
		defer p.allocWG.Done()
		start := p.clockNow()
		err := p.cfg.DestroyHandler(ctx, ref.resource)
		p.cfg.Metrics.RecordDestroyLatency(p.clockNow().Sub(start))
		if err != nil {
			p.cfg.Metrics.RecordDestroyError()
			p.cfg.Logger.Warn().Err(err).Msg("destroy handler failed")
		}
		p.cfg.Strategy.Return(1)
		p.scheduleDrain()
	}()
}

// Warmup pre-allocates up to the allocation strategy's configured minimum
// (spec §4.6). It is a thin wrapper over WarmupTo so callers who want an
// initial size independent of Min() (SPEC_FULL.md Open Question #3's
// escape hatch) can call WarmupTo directly.
func (p *Pool[T]) Warmup(ctx context.Context) error {
	return p.WarmupTo(ctx, p.cfg.Strategy.Min())
}

// WarmupTo pre-allocates n resources directly into the idle store,
// claiming permits the same way the drain core's allocate path does.
// Allocations run concurrently via errgroup, replacing the teacher's
// hand-rolled channel fan-in (alpha-sql/pool.go's createIdleConnections)
// with the same bounded-concurrency shape the rest of the pack reaches
// for. If ctx carries no deadline of its own, warmupDeadline bounds it so a
// stuck Allocator can't hang startup forever.
func (p *Pool[T]) WarmupTo(ctx context.Context, n int) error {
	if n <= 0 || p.isDisposed() {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, warmupDeadline(0))
		defer cancel()
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			granted := p.cfg.Strategy.TryGet(1)
			if granted == 0 {
				return nil
			}
			start := p.clockNow()
			resource, err := p.cfg.Allocator(gctx)
			dur := p.clockNow().Sub(start)
			if err != nil {
				p.cfg.Metrics.RecordAllocationFailureLatency(dur)
				p.cfg.Strategy.Return(granted)
				return &AllocationError{Cause: err}
			}
			p.cfg.Metrics.RecordAllocationSuccessLatency(dur)
			if granted > 1 {
				p.cfg.Strategy.Return(granted - 1)
			}
			ref := newPooledRef(p, resource, p.clockNow())
			ref.state.Store(int32(stateIdle))
			ref.lastReleaseTimestampNano.Store(p.clockNow().UnixNano())
			p.pushIdleOrDestroy(ref)
			return nil
		})
	}
	err := g.Wait()
	p.scheduleDrain()
	return err
}

// Shutdown disposes of the pool (spec §4.6). It is idempotent: only the
// first call does anything. Every borrower still waiting fails with
// ErrShutdown; every ref idle at the time is destroyed exactly once;
// refs still held by a borrower are destroyed as they're released or
// invalidated from here on, since releaseRef checks isDisposed(). Blocks
// until every in-flight allocate/destroy goroutine has settled, or ctx is
// done first.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if !p.disposed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancelBaseCtx()

	for {
		b := p.pending.poll()
		if b == nil {
			break
		}
		p.pendingCount.Add(-1)
		b.fail(ErrShutdown)
	}

	for _, ref := range p.idle.drainAll() {
		p.destroyRef(ctx, ref)
	}

	done := make(chan struct{})
	go func() {
		p.allocWG.Wait()
		// A goroutine racing pushIdleOrDestroy's disposed check against this
		// very drainAll above could still have landed a ref in the idle
		// store after it ran; allocWG.Wait() having returned means no such
		// goroutine is still in flight, so one more sweep catches it.
		for _, ref := range p.idle.drainAll() {
			p.destroyRef(ctx, ref)
		}
		p.allocWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
