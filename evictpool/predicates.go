// Package evictpool bundles ready-made eviction predicates for
// github.com/sinhashubham95/gopool, outside the core so the core itself
// stays policy-free (gopool.EvictionPredicate is just a func type).
package evictpool

import (
	"math/rand/v2"
	"time"

	"github.com/sinhashubham95/gopool"
)

// MaxLifetimeWithJitter evicts a resource once it has existed for longer
// than maxAge plus a random jitter in [0, jitter), so that resources
// allocated around the same time don't all expire in the same instant and
// stampede the allocator. The jitter is recomputed on every call from the
// resource's allocation timestamp, so repeated calls for the same resource
// are stable without caching anything.
//
// Grounded on alpha-sql/pool/connection.go's newConnection, which computes
// maxAgeTime = creationTime + maxConnectionLifetime + rand*jitter once at
// connection-creation time and compares against it in isExpiredConnection.
// Predicates here can't stash state on the resource itself (T is opaque),
// so the per-resource jitter is instead derived deterministically from the
// resource's AllocationTimestamp, which is stable for the resource's whole
// lifetime.
func MaxLifetimeWithJitter[T any](maxAge, jitter time.Duration) gopool.EvictionPredicate[T] {
	return func(_ T, meta gopool.PooledRefMetadata) bool {
		deadline := meta.AllocationTimestamp.Add(maxAge).Add(jitterFor(meta.AllocationTimestamp, jitter))
		return time.Now().After(deadline)
	}
}

// MaxIdleTime evicts a resource that has been sitting idle for longer than
// d. Grounded on alpha-sql/pool/connection.go's idleDuration/lastUsedNano
// tracking, generalized to the core's own IdleSince accessor.
func MaxIdleTime[T any](d time.Duration) gopool.EvictionPredicate[T] {
	return func(_ T, meta gopool.PooledRefMetadata) bool {
		return meta.IdleSince >= d
	}
}

// jitterFor derives a stable pseudo-random duration in [0, jitter) from a
// timestamp, so the same resource always gets the same jitter without
// needing anywhere to store it.
func jitterFor(seed time.Time, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return 0
	}
	r := rand.New(rand.NewPCG(uint64(seed.UnixNano()), 0xa5a5a5a5))
	return time.Duration(r.Float64() * float64(jitter))
}
