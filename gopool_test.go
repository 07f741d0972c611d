package gopool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingIntPool(t *testing.T, maxSize, minIdle int) (*Pool[int], *int64, *int64) {
	t.Helper()
	var allocated, destroyed int64
	cfg := Config[int]{
		Allocator: func(context.Context) (int, error) {
			n := atomic.AddInt64(&allocated, 1)
			return int(n), nil
		},
		DestroyHandler: func(context.Context, int) error {
			atomic.AddInt64(&destroyed, 1)
			return nil
		},
		MaxSize: maxSize,
		MinIdle: minIdle,
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p, &allocated, &destroyed
}

// S1: with a bounded(2) pool fully checked out, two further borrowers are
// served in FIFO order as resources are released.
func TestAcquire_FIFODeliveryOrderUnderContention(t *testing.T) {
	p, _, _ := newCountingIntPool(t, 2, 0)
	ctx := context.Background()

	r1, err := p.Acquire(ctx, 0)
	require.NoError(t, err)
	r2, err := p.Acquire(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 0, p.IdleSize())
	require.Equal(t, 2, p.AcquiredSize())

	type result struct {
		order int
		ref   *PooledRef[int]
		err   error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		order := i
		go func() {
			defer wg.Done()
			ref, err := p.Acquire(ctx, time.Second)
			results <- result{order: order, ref: ref, err: err}
		}()
		time.Sleep(20 * time.Millisecond) // ensure subscription order
	}

	require.NoError(t, r1.Release(ctx))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r2.Release(ctx))

	first := <-results
	second := <-results
	wg.Wait()

	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, 0, first.order)
	assert.Equal(t, 1, second.order)

	require.NoError(t, first.ref.Release(ctx))
	require.NoError(t, second.ref.Release(ctx))
}

// S2: Acquire against an exhausted bounded pool with no release forthcoming
// fails with ErrAcquireTimeout once its deadline elapses.
func TestAcquire_TimesOutWhenExhausted(t *testing.T) {
	p, _, _ := newCountingIntPool(t, 1, 0)
	ctx := context.Background()

	_, err := p.Acquire(ctx, 0)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(ctx, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

// S3: an idle resource the eviction predicate rejects is destroyed instead
// of handed out; the pending borrower is served by a freshly allocated one.
func TestDrain_SecondChanceEvictionOnReuse(t *testing.T) {
	var evictNext atomic.Bool
	var destroyed int64
	allocated := 0
	cfg := Config[int]{
		Allocator: func(context.Context) (int, error) {
			allocated++
			return allocated, nil
		},
		DestroyHandler: func(context.Context, int) error {
			atomic.AddInt64(&destroyed, 1)
			return nil
		},
		EvictionPredicate: func(int, PooledRefMetadata) bool {
			return evictNext.Load()
		},
		MaxSize: 1,
	}
	p, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	r1, err := p.Acquire(ctx, 0)
	require.NoError(t, err)
	firstValue := r1.Value()
	require.NoError(t, r1.Release(ctx))
	evictNext.Store(true)

	r2, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, firstValue, r2.Value(), "evicted resource must not be reused")
	assert.Equal(t, int64(1), atomic.LoadInt64(&destroyed))
	require.NoError(t, r2.Release(ctx))
}

// S4: Shutdown fails every currently-pending borrower with ErrShutdown and
// rejects subsequent Acquire calls the same way.
func TestShutdown_FailsPendingAndRejectsNewAcquires(t *testing.T) {
	p, _, destroyed := newCountingIntPool(t, 1, 0)
	ctx := context.Background()

	_, err := p.Acquire(ctx, 0)
	require.NoError(t, err)

	waitErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, 2*time.Second)
		waitErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(shutdownCtx))

	assert.ErrorIs(t, <-waitErr, ErrShutdown)

	_, err = p.Acquire(ctx, 0)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.Equal(t, int64(0), atomic.LoadInt64(destroyed), "the still-acquired resource isn't destroyed until released")
}

// S5: a release handler error destroys the resource and surfaces a
// ReleaseHandlerError; a fresh Acquire still succeeds with a new resource.
func TestRelease_HandlerErrorDestroysResource(t *testing.T) {
	var destroyed int64
	releaseErr := errors.New("reset failed")
	cfg := Config[int]{
		Allocator: func(context.Context) (int, error) { return 1, nil },
		ReleaseHandler: func(context.Context, int) error {
			return releaseErr
		},
		DestroyHandler: func(context.Context, int) error {
			atomic.AddInt64(&destroyed, 1)
			return nil
		},
		MaxSize: 1,
	}
	p, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	r, err := p.Acquire(ctx, 0)
	require.NoError(t, err)

	err = r.Release(ctx)
	var rhErr *ReleaseHandlerError
	require.ErrorAs(t, err, &rhErr)
	assert.ErrorIs(t, rhErr.Cause, releaseErr)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&destroyed) == 1
	}, time.Second, time.Millisecond)

	r2, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, r2.Release(ctx))
}

// S6: a concurrent release/reacquire storm never deadlocks and leaves
// acquiredCount/idle bookkeeping consistent.
func TestPool_ConcurrentAcquireReleaseStorm(t *testing.T) {
	const n = 64
	p, _, _ := newCountingIntPool(t, 8, 4)
	ctx := context.Background()
	require.NoError(t, p.Warmup(ctx))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ref, err := p.Acquire(ctx, 2*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				_ = ref.Value()
				assert.NoError(t, ref.Release(ctx))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, p.AcquiredSize())
	assert.LessOrEqual(t, p.IdleSize(), 8)
}

// Releasing or invalidating the same ref twice is a no-op the second time.
func TestPooledRef_ReleaseAndInvalidateAreIdempotent(t *testing.T) {
	p, _, destroyed := newCountingIntPool(t, 1, 0)
	ctx := context.Background()

	r, err := p.Acquire(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, r.Release(ctx))
	assert.NoError(t, r.Release(ctx))
	assert.NoError(t, r.Invalidate(ctx))

	assert.Equal(t, int64(0), atomic.LoadInt64(destroyed))
}

func TestAcquire_ContextCancellationUnblocksWaiter(t *testing.T) {
	p, _, _ := newCountingIntPool(t, 1, 0)
	ctx := context.Background()

	_, err := p.Acquire(ctx, 0)
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(cctx, 0)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock on context cancellation")
	}
}

// overgrantStrategy always hands out double what's asked, up to a fixed
// ceiling, modelling an AllocationStrategy that deliberately pre-warms
// (spec §4.3 case 1's "strategy may grant extras to warm").
type overgrantStrategy struct {
	remaining atomic.Int64
}

func newOvergrantStrategy(total int) *overgrantStrategy {
	s := &overgrantStrategy{}
	s.remaining.Store(int64(total))
	return s
}

func (s *overgrantStrategy) TryGet(desired int) int {
	want := int64(desired * 2)
	for {
		cur := s.remaining.Load()
		if cur <= 0 {
			return 0
		}
		grant := want
		if grant > cur {
			grant = cur
		}
		if s.remaining.CompareAndSwap(cur, cur-grant) {
			return int(grant)
		}
	}
}

func (s *overgrantStrategy) Return(n int)  { s.remaining.Add(int64(n)) }
func (s *overgrantStrategy) Estimate() int { return 1 }
func (s *overgrantStrategy) Min() int      { return 0 }

// TestDrain_AffinityPrefersMatchingExecutorOverSubscriptionOrder exercises
// spec §4.3's "Affinity variant" end to end through DrainCore (not just
// affinityPendingStore in isolation): on reuse, a borrower whose AcquireOn
// executor matches the resource's last-used executor jumps ahead of a
// borrower that subscribed earlier on a different executor.
func TestDrain_AffinityPrefersMatchingExecutorOverSubscriptionOrder(t *testing.T) {
	cfg := Config[int]{
		Allocator:    func(context.Context) (int, error) { return 1, nil },
		MaxSize:      1,
		PendingOrder: AFFINITY,
	}
	p, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	var e1, e2 fakeExecutor
	r1, err := p.AcquireOn(ctx, 0, &e1)
	require.NoError(t, err)

	type result struct {
		label string
		ref   *PooledRef[int]
		err   error
	}
	results := make(chan result, 2)

	go func() {
		ref, err := p.AcquireOn(ctx, time.Second, &e2)
		results <- result{label: "other", ref: ref, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	go func() {
		ref, err := p.AcquireOn(ctx, time.Second, &e1)
		results <- result{label: "affine", ref: ref, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, r1.Release(ctx))

	first := <-results
	require.NoError(t, first.err)
	assert.Equal(t, "affine", first.label, "matching-executor borrower should be served first despite subscribing second")

	require.NoError(t, first.ref.Release(ctx))

	second := <-results
	require.NoError(t, second.err)
	assert.Equal(t, "other", second.label)
	require.NoError(t, second.ref.Release(ctx))
}

// TestDrain_OvergrantIsSpentWarmingIdleStore exercises spec §4.3 case 1's
// "granted > 1" branch directly: a single acquire against an empty pool
// should come back with one delivered ref and the surplus permit spent on a
// second resource sitting ready in the idle store.
func TestDrain_OvergrantIsSpentWarmingIdleStore(t *testing.T) {
	var allocated int64
	cfg := Config[int]{
		Allocator: func(context.Context) (int, error) {
			return int(atomic.AddInt64(&allocated, 1)), nil
		},
		Strategy: newOvergrantStrategy(10),
	}
	p, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.IdleSize() == 1
	}, time.Second, time.Millisecond, "overgrant surplus should warm one idle resource")
	assert.Equal(t, 1, p.AcquiredSize())

	require.NoError(t, ref.Release(ctx))
}

// round-trip law (spec §8): warmup(k) -> shutdown() invokes the destroy
// handler exactly k times, whether warmed via Warmup's Min()-derived target
// or WarmupTo's explicit n.
func TestWarmupShutdown_DestroyHandlerFiresExactlyWarmedCount(t *testing.T) {
	t.Run("Warmup", func(t *testing.T) {
		p, _, destroyed := newCountingIntPool(t, 5, 3)
		require.NoError(t, p.Warmup(context.Background()))
		require.Equal(t, 3, p.IdleSize())

		require.NoError(t, p.Shutdown(context.Background()))
		assert.Equal(t, int64(3), atomic.LoadInt64(destroyed))
	})

	t.Run("WarmupTo", func(t *testing.T) {
		p, _, destroyed := newCountingIntPool(t, 10, 0)
		require.NoError(t, p.WarmupTo(context.Background(), 5))
		require.Equal(t, 5, p.IdleSize())

		require.NoError(t, p.Shutdown(context.Background()))
		assert.Equal(t, int64(5), atomic.LoadInt64(destroyed))
	})
}
