package gopool

import (
	"sync"

	"github.com/sinhashubham95/go-utils/structures/stack"
)

// pendingStore is the capability-narrow interface DrainCore consumes to
// manage waiting borrowers (spec §9 "Pluggable pending queue"): FIFO vs
// LIFO vs affinity-keyed is a policy choice over this interface, never a
// structural change to the drain core itself. Offer must be safe for
// concurrent callers. Poll is called by the drain core's serialised
// section and also by Shutdown, possibly at the same time, so it must be
// safe for concurrent callers too.
type pendingStore[T any] interface {
	offer(*pendingBorrower[T])
	poll() *pendingBorrower[T]
	size() int
}

// fifoPendingStore serves borrowers in subscription order: the natural
// choice for a queue-style pool (spec §4.3 "Tie-breaks and ordering").
type fifoPendingStore[T any] struct {
	mu    sync.Mutex
	items []*pendingBorrower[T]
	head  int
}

func newFIFOPendingStore[T any]() *fifoPendingStore[T] {
	return &fifoPendingStore[T]{}
}

func (s *fifoPendingStore[T]) offer(b *pendingBorrower[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, b)
}

func (s *fifoPendingStore[T]) poll() *pendingBorrower[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.head >= len(s.items) {
		return nil
	}
	b := s.items[s.head]
	s.items[s.head] = nil
	s.head++
	// Compact occasionally so a long-lived pool doesn't retain an
	// ever-growing backing array of nil slots.
	if s.head > 64 && s.head*2 >= len(s.items) {
		s.items = append([]*pendingBorrower[T]{}, s.items[s.head:]...)
		s.head = 0
	}
	return b
}

func (s *fifoPendingStore[T]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) - s.head
}

// lifoPendingStore serves the most recently subscribed borrower first,
// useful for affinity/fast-lookup pools where recency maximises cache
// warmth (spec §4.3). Backed by the same go-utils stack the teacher's
// mvStack uses for its idle connections (pool/mvstack.go).
type lifoPendingStore[T any] struct {
	mu sync.Mutex
	s  *stack.Stack[*pendingBorrower[T]]
}

func newLIFOPendingStore[T any]() *lifoPendingStore[T] {
	return &lifoPendingStore[T]{s: stack.New[*pendingBorrower[T]]()}
}

func (s *lifoPendingStore[T]) offer(b *pendingBorrower[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Push(b)
}

func (s *lifoPendingStore[T]) poll() *pendingBorrower[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.s.Pop()
	if !ok {
		return nil
	}
	return b
}

func (s *lifoPendingStore[T]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s.Length()
}

// affinityAwarePendingStore is implemented by pending stores that can
// prefer a borrower whose subscription executor matches a resource's
// last-used executor before falling back to a global slow path (spec §4.3
// "Affinity variant"). drain.go's pollForReuse type-asserts for this
// capability on every reuse match and falls back to plain poll() when it
// isn't present, which is the case for fifoPendingStore and
// lifoPendingStore.
type affinityAwarePendingStore[T any] interface {
	pendingStore[T]
	pollForExecutor(executor Executor) *pendingBorrower[T]
}

// affinityPendingStore keys borrowers by their subscription Executor, with
// a global FIFO fallback for borrowers that didn't request one.
type affinityPendingStore[T any] struct {
	mu         sync.Mutex
	byExecutor map[Executor][]*pendingBorrower[T]
	global     *fifoPendingStore[T]
	total      int
}

func newAffinityPendingStore[T any]() *affinityPendingStore[T] {
	return &affinityPendingStore[T]{
		byExecutor: make(map[Executor][]*pendingBorrower[T]),
		global:     newFIFOPendingStore[T](),
	}
}

func (s *affinityPendingStore[T]) offer(b *pendingBorrower[T]) {
	if b.executor == nil {
		s.global.offer(b)
		s.mu.Lock()
		s.total++
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byExecutor[b.executor] = append(s.byExecutor[b.executor], b)
	s.total++
}

func (s *affinityPendingStore[T]) poll() *pendingBorrower[T] {
	if b := s.global.poll(); b != nil {
		s.mu.Lock()
		s.total--
		s.mu.Unlock()
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, q := range s.byExecutor {
		if len(q) == 0 {
			continue
		}
		b := q[0]
		s.byExecutor[k] = q[1:]
		s.total--
		return b
	}
	return nil
}

func (s *affinityPendingStore[T]) pollForExecutor(executor Executor) *pendingBorrower[T] {
	if executor != nil {
		s.mu.Lock()
		q := s.byExecutor[executor]
		if len(q) > 0 {
			b := q[0]
			s.byExecutor[executor] = q[1:]
			s.total--
			s.mu.Unlock()
			return b
		}
		s.mu.Unlock()
	}
	return s.poll()
}

func (s *affinityPendingStore[T]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
