package gopool

import (
	"context"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// PendingOrder selects the discipline the pending-borrower queue uses to
// decide which waiter is matched next. See spec §4.3 "Tie-breaks and
// ordering".
type PendingOrder int

const (
	// FIFO serves borrowers in subscription order. The natural choice for
	// a queue-style pool where fairness across borrowers matters.
	FIFO PendingOrder = iota
	// LIFO serves the most recently subscribed borrower first. Useful for
	// affinity/fast-lookup pools where warm caches favour recency.
	LIFO
	// AFFINITY keys waiting borrowers by their subscription Executor. On
	// reuse, DrainCore prefers a borrower whose Executor matches the
	// resource's last-used Executor before falling back to the global
	// queue (spec §4.3 "Affinity variant").
	AFFINITY
)

// Allocator produces one new resource. It must not block the calling
// goroutine on anything other than ctx; long-running construction should
// itself be asynchronous from the caller's point of view (it runs on its
// own goroutine inside the core).
type Allocator[T any] func(ctx context.Context) (T, error)

// ReleaseHandler resets a resource before it is offered back to the idle
// store. An error destroys the resource instead of recycling it.
type ReleaseHandler[T any] func(ctx context.Context, resource T) error

// DestroyHandler disposes of a resource permanently. Errors are logged and
// reported to MetricsSink.RecordDestroyError but never propagated to any
// caller (spec §7): destruction is considered irreversible regardless of
// handler outcome.
type DestroyHandler[T any] func(ctx context.Context, resource T) error

// EvictionPredicate synchronously decides whether a resource is unfit for
// reuse. It must be pure and fast: it runs inline inside the drain core on
// both the release path and the acquire-from-idle path (spec §4.3,
// "second-chance eviction"). A predicate that panics is treated as true
// (evict) and logged (spec §7).
type EvictionPredicate[T any] func(resource T, meta PooledRefMetadata) bool

// Revalidator is an optional second gate consulted by Acquire itself,
// after a reused (not freshly allocated) ref has been delivered. Unlike
// EvictionPredicate it may be slow (e.g. a network health check): it runs
// on the acquiring goroutine rather than inline in the drain core's
// serialised section, so a slow check never stalls matching for other
// borrowers. A failed check destroys the resource and Acquire transparently
// retries. See SPEC_FULL.md's "Health-check re-validation on acquire"
// supplement.
type Revalidator[T any] func(ctx context.Context, resource T) bool

// Executor is an opaque single-method hop used to force delivery of an
// acquired resource onto a specific goroutine/scheduler instead of
// whichever goroutine happens to be running the drain loop (spec §6).
type Executor interface {
	Schedule(task func())
}

// Config configures a Pool. ValidateAndDefault must be called (New does
// this automatically) before the config is used.
type Config[T any] struct {
	// Allocator is the only mandatory field.
	Allocator Allocator[T]

	ReleaseHandler    ReleaseHandler[T]
	DestroyHandler    DestroyHandler[T]
	EvictionPredicate EvictionPredicate[T]
	Revalidate        Revalidator[T]

	// Strategy gates how many live resources may exist at once. If nil,
	// it is derived from MaxSize: MaxSize <= 0 means UnboundedStrategy,
	// otherwise NewBoundedStrategy(MaxSize, MinIdle).
	Strategy AllocationStrategy
	MaxSize  int
	// MinIdle is both the warmup target and AllocationStrategy.Min()'s
	// source when Strategy is derived from MaxSize (see SPEC_FULL.md
	// Open Question #3).
	MinIdle int

	// PendingOrder selects the borrower queue discipline. Defaults to FIFO.
	PendingOrder PendingOrder

	// AcquisitionExecutor, if set, forces delivery of acquired resources
	// onto Executor.Schedule instead of whichever goroutine completes the
	// match (allocator-completion, releaser's, or subscriber's thread).
	AcquisitionExecutor Executor

	Clock   Clock
	Logger  zerolog.Logger
	Metrics MetricsSink
}

// ValidateAndDefault validates mandatory fields and fills in defaults for
// everything else, in the shape of the teacher's own
// Config.ValidateAndDefault.
func (c *Config[T]) ValidateAndDefault() error {
	if c.Allocator == nil {
		return ErrMissingAllocator
	}
	if c.ReleaseHandler == nil {
		c.ReleaseHandler = func(context.Context, T) error { return nil }
	}
	if c.DestroyHandler == nil {
		c.DestroyHandler = func(context.Context, T) error { return nil }
	}
	if c.EvictionPredicate == nil {
		c.EvictionPredicate = func(T, PooledRefMetadata) bool { return false }
	}
	if c.Revalidate == nil {
		c.Revalidate = func(context.Context, T) bool { return true }
	}
	if c.Strategy == nil {
		if c.MaxSize <= 0 {
			c.Strategy = NewUnboundedStrategy(c.MinIdle)
		} else {
			c.Strategy = NewBoundedStrategy(c.MaxSize, c.MinIdle)
		}
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if isZeroLogger(c.Logger) {
		c.Logger = defaultLogger
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return nil
}

func isZeroLogger(l zerolog.Logger) bool {
	return reflect.DeepEqual(l, zerolog.Logger{})
}

// warmupDeadline is the default bound WarmupTo applies to its context when
// the caller didn't already set one, so a stuck Allocator can't hang a
// startup warmup indefinitely.
func warmupDeadline(base time.Duration) time.Duration {
	if base <= 0 {
		return 30 * time.Second
	}
	return base
}
