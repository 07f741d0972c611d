package gopool

import (
	"github.com/sinhashubham95/go-utils/maths"
	"golang.org/x/sync/semaphore"
)

// AllocationStrategy gates how many live resources the pool may create at
// once (spec §4.1). tryGet returning 0 is not an error: the drain core
// treats it as "no capacity right now" and leaves the borrower pending.
type AllocationStrategy interface {
	// TryGet reserves permits atomically for desired, returning the number
	// actually granted. Implementations are free to grant fewer (down to
	// 0, meaning no capacity right now) or, as a pre-warming optimization,
	// more than desired. Every granted permit not converted into a live
	// resource must later be returned via Return.
	TryGet(desired int) int
	// Return restores n permits. Must never push the strategy's internal
	// count past its configured maximum.
	Return(n int)
	// Estimate is a non-authoritative hint: the drain core uses it only
	// to decide whether attempting an allocation is worthwhile this round.
	Estimate() int
	// Min is the lower bound Warmup pre-allocates up to.
	Min() int
}

// UnboundedStrategy never refuses a permit. It mirrors alpha-sql's pool
// behaviour when MaxConnections is left at its zero value conceptually:
// there the teacher still enforces a cap (its maxSize defaults to
// max(4, NumCPU)), but spec §4.1 explicitly calls for an always-grant
// strategy as one of the two canonical instances, so TryGet here always
// grants the full request.
type UnboundedStrategy struct {
	min int
}

// NewUnboundedStrategy returns a strategy with no capacity ceiling.
func NewUnboundedStrategy(min int) *UnboundedStrategy {
	return &UnboundedStrategy{min: min}
}

func (s *UnboundedStrategy) TryGet(desired int) int { return desired }
func (s *UnboundedStrategy) Return(int)             {}
func (s *UnboundedStrategy) Estimate() int          { return 1 }
func (s *UnboundedStrategy) Min() int               { return s.min }

// BoundedStrategy caps the number of live resources at max, backed by a
// weighted semaphore exactly as alpha-sql/pool.go's acquireSem does.
type BoundedStrategy struct {
	sem *semaphore.Weighted
	min int
}

// NewBoundedStrategy returns a strategy that never grants more than max
// permits outstanding at once.
func NewBoundedStrategy(max, min int) *BoundedStrategy {
	return &BoundedStrategy{
		sem: semaphore.NewWeighted(int64(max)),
		min: min,
	}
}

// TryGet first attempts to grab the whole desired count in one shot; if the
// semaphore doesn't have that much headroom it falls back to claiming
// whatever it can via a log2 decomposition into power-of-two chunks, the
// same trick alpha-sql/pool/acquirerelease.go's acquireSemAll uses to
// opportunistically drain a semaphore without looping one permit at a time.
// Unlike acquireSemAll, the chunks here are capped so the total granted
// never exceeds desired, matching this interface's contract.
func (s *BoundedStrategy) TryGet(desired int) int {
	if desired <= 0 {
		return 0
	}
	if s.sem.TryAcquire(int64(desired)) {
		return desired
	}
	var acquired int
	for i := int(maths.Log2(float32(desired))); i >= 0; i-- {
		v := 1 << i
		if acquired+v > desired {
			continue
		}
		if s.sem.TryAcquire(int64(v)) {
			acquired += v
		}
	}
	return acquired
}

func (s *BoundedStrategy) Return(n int) {
	if n <= 0 {
		return
	}
	s.sem.Release(int64(n))
}

// Estimate always reports optimistically: semaphore.Weighted exposes no
// way to peek remaining capacity without mutating it, so the drain core
// only ever learns the true answer from TryGet itself. Reporting 1 here
// just means "it's always worth trying an allocation", which is the
// correct conservative default for a hint that is non-authoritative by
// contract (spec §4.1).
func (s *BoundedStrategy) Estimate() int { return 1 }

func (s *BoundedStrategy) Min() int { return s.min }
