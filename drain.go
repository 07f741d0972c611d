package gopool

// scheduleDrain is the wip-serialised single-flight entry point every
// producer of drain-core work calls: borrower subscription, release,
// invalidate, destroy completion and allocator completion all end with a
// call here instead of doing any matching themselves. Whichever caller
// bumps wip from 0 owns the loop until no further work was missed, exactly
// the "bump from zero owns it" idiom spec §4.3/§9 calls for; nobody ever
// blocks waiting for someone else's turn.
func (p *Pool[T]) scheduleDrain() {
	if p.wip.Add(1) != 1 {
		return
	}
	missed := int32(1)
	for {
		p.drainStep()
		missed = p.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

// drainStep performs one matching round (spec §4.3) repeatedly until
// neither the allocate-path nor the reuse-path can make further progress.
// Re-deriving avail/pend/est on every iteration is what lets it retry a
// poll that raced to nil without returning control to scheduleDrain's
// outer loop.
func (p *Pool[T]) drainStep() {
	for {
		if p.isDisposed() {
			return
		}
		avail := p.idle.size()
		pend := int(p.pendingCount.Load())
		est := p.cfg.Strategy.Estimate()

		switch {
		case avail == 0 && pend > 0 && est > 0:
			if !p.tryAllocate() {
				return
			}
		case avail > 0 && pend > 0:
			if !p.tryReuse() {
				return
			}
		default:
			return
		}
	}
}

// tryAllocate implements spec §4.3 case 1: no idle resource, a borrower
// waiting, and the strategy's hint says capacity might exist. It always
// requests a single permit for b; a strategy is nonetheless free to grant
// more than asked as a pre-warming optimization (AllocationStrategy's
// contract allows it), in which case completeAllocation spends the surplus
// warming the idle store rather than banking it. Returns whether the round
// made progress and should keep looping.
func (p *Pool[T]) tryAllocate() bool {
	granted := p.cfg.Strategy.TryGet(1)
	if granted == 0 {
		return false
	}
	b := p.pending.poll()
	if b == nil {
		p.cfg.Strategy.Return(granted)
		return false
	}
	p.pendingCount.Add(-1)

	// Speculative: claim the slot before we know whether b is still
	// there to receive it, since granting is itself non-trivial (may
	// need to roll back).
	p.acquiredCount.Add(1)

	if b.loadState() != borrowerWaiting {
		// b already left WAITING (timed out/cancelled) between poll and
		// here. Whatever we reserved is unused; give it back and keep
		// draining, there may be more pending work behind it.
		p.acquiredCount.Add(-1)
		if granted > 0 {
			p.cfg.Strategy.Return(granted)
		}
		return true
	}
	b.stopTimer()
	p.allocWG.Add(1)
	go p.completeAllocation(b, granted)
	return true
}

// completeAllocation runs the user Allocator off the drain core and
// re-enters via scheduleDrain on completion, exactly the "suspension
// points re-enter the core via their own completions" rule gopool.go's
// package doc describes.
func (p *Pool[T]) completeAllocation(b *pendingBorrower[T], granted int) {
	defer p.allocWG.Done()

	ctx := b.ctx
	if ctx == nil {
		ctx = p.baseCtx
	}
	start := p.clockNow()
	resource, err := p.cfg.Allocator(ctx)
	dur := p.clockNow().Sub(start)

	if err != nil {
		p.cfg.Metrics.RecordAllocationFailureLatency(dur)
		p.cfg.Logger.Warn().Err(err).Msg("allocator failed")
		p.acquiredCount.Add(-1)
		p.cfg.Strategy.Return(granted)
		b.fail(&AllocationError{Cause: err})
		p.scheduleDrain()
		return
	}
	p.cfg.Metrics.RecordAllocationSuccessLatency(dur)

	ref := newPooledRef(p, resource, p.clockNow())
	ref.affinity = b.executor
	if granted > 1 {
		// Overgrant: a strategy decided to hand out more permits than
		// this one borrower asked for, as a pre-warming optimization
		// (AllocationStrategy.TryGet's contract permits this). Spec
		// §4.3/§9: don't just bank the rest, spend them warming the idle
		// store so the surplus isn't wasted.
		p.warmOvergrant(granted - 1)
	}
	p.deliverOrRecycle(b, ref)
}

// warmOvergrant spends permits the strategy handed out beyond what the
// triggering borrower needed. Each succeeds into an idle ref (waking the
// drain so any other waiter can claim it) or fails back to one returned
// permit, per spec §4.3 case 1's "subscribe to allocator granted-1 more
// times".
func (p *Pool[T]) warmOvergrant(extra int) {
	for i := 0; i < extra; i++ {
		p.allocWG.Add(1)
		go func() {
			defer p.allocWG.Done()
			start := p.clockNow()
			resource, err := p.cfg.Allocator(p.baseCtx)
			dur := p.clockNow().Sub(start)
			if err != nil {
				p.cfg.Metrics.RecordAllocationFailureLatency(dur)
				p.cfg.Logger.Warn().Err(err).Msg("overgrant warmup allocation failed")
				p.cfg.Strategy.Return(1)
				p.scheduleDrain()
				return
			}
			p.cfg.Metrics.RecordAllocationSuccessLatency(dur)
			ref := newPooledRef(p, resource, p.clockNow())
			ref.state.Store(int32(stateIdle))
			ref.lastReleaseTimestampNano.Store(p.clockNow().UnixNano())
			p.pushIdleOrDestroy(ref)
			p.scheduleDrain()
		}()
	}
}

// pushIdleOrDestroy offers ref to the idle store, unless the pool was
// disposed in the meantime, in which case it is destroyed instead. Every
// background completion that wants to hand a freshly built ref to the idle
// store (rather than straight to a waiting borrower) goes through here so a
// Shutdown racing with an in-flight allocation can't strand a live ref past
// invariant 5 (spec §8).
func (p *Pool[T]) pushIdleOrDestroy(ref *PooledRef[T]) {
	if p.isDisposed() {
		p.destroyRef(p.baseCtx, ref)
		return
	}
	p.idle.push(ref)
}

// tryReuse implements spec §4.3 case 2: an idle resource and a waiting
// borrower both exist. Applies the eviction predicate first (second-chance
// eviction), then matches against the next borrower.
func (p *Pool[T]) tryReuse() bool {
	slot := p.idle.poll()
	if slot == nil {
		return false
	}

	if p.evictOnReuse(slot) {
		p.destroyRef(p.baseCtx, slot)
		return true
	}

	b := p.pollForReuse(slot)
	if b == nil {
		// Nobody actually there to take it; put it back and stop, the
		// pend>0 reading that got us here already raced.
		p.idle.push(slot)
		return false
	}
	p.pendingCount.Add(-1)

	if b.loadState() != borrowerWaiting {
		p.idle.push(slot)
		return true
	}

	b.stopTimer()
	p.cfg.Metrics.RecordIdleTime(slot.IdleSince())
	p.acquiredCount.Add(1)
	slot.state.Store(int32(stateAcquired))
	slot.acquireCount.Add(1)
	slot.decremented.Store(false)
	slot.affinity = b.executor
	p.deliverOrRecycle(b, slot)
	return true
}

// pollForReuse polls the pending store for a borrower to hand slot to. If
// the pending store is affinity-aware, it prefers a borrower whose
// subscription Executor matches slot's last-used Executor, falling back to
// the global queue (spec §4.3 "Affinity variant"); otherwise it's a plain
// poll, identical for FIFO and LIFO.
func (p *Pool[T]) pollForReuse(slot *PooledRef[T]) *pendingBorrower[T] {
	if aw, ok := p.pending.(affinityAwarePendingStore[T]); ok {
		return aw.pollForExecutor(slot.affinity)
	}
	return p.pending.poll()
}

// evictOnReuse runs the user EvictionPredicate, treating a panic as "evict"
// per spec §7's handling of misbehaving callbacks.
func (p *Pool[T]) evictOnReuse(ref *PooledRef[T]) (evict bool) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error().Interface("panic", r).Msg("eviction predicate panicked; evicting resource")
			evict = true
		}
	}()
	return p.cfg.EvictionPredicate(ref.resource, ref.metadata())
}

// deliverOrRecycle hands ref to b, optionally hopping through the
// acquisition executor first (spec §6). If b lost the race to
// deliver (timed out/cancelled between match and delivery), ref never
// reached anyone: it is recycled back to idle and a fresh drain is
// scheduled instead of leaking it (spec §4.4 "Delivery").
func (p *Pool[T]) deliverOrRecycle(b *pendingBorrower[T], ref *PooledRef[T]) {
	deliver := func() {
		if b.deliver(ref) {
			return
		}
		p.recycleOrphanedRef(ref)
	}
	if p.cfg.AcquisitionExecutor != nil {
		p.cfg.AcquisitionExecutor.Schedule(deliver)
		return
	}
	deliver()
}

// recycleOrphanedRef returns a ref that was matched to a borrower who
// vanished before delivery completed. Nobody will ever call Release or
// Invalidate on it, so the speculative acquiredCount increment must be
// undone here instead.
func (p *Pool[T]) recycleOrphanedRef(ref *PooledRef[T]) {
	p.acquiredCount.Add(-1)
	ref.state.Store(int32(stateIdle))
	ref.lastReleaseTimestampNano.Store(p.clockNow().UnixNano())
	p.pushIdleOrDestroy(ref)
	p.scheduleDrain()
}
