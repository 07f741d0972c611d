package gopool

import (
	"sync"

	"github.com/sinhashubham95/go-utils/structures/stack"
)

// idleStore is the MPSC-safe container of PooledRefs awaiting reuse
// (spec C4 "IdleStore"), backed by the same go-utils stack
// alpha-sql/pool/mvstack.go's mvStack wraps. mvStack's multi-version
// bump/rotate behaviour exists there to let AcquireAllIdle snapshot a
// whole generation of idle connections without blocking concurrent
// pushes; the drain core here only ever needs push/pop/size one at a
// time, so the extra bookkeeping is dropped and this is a direct
// mutex-guarded stack.
type idleStore[T any] struct {
	mu sync.Mutex
	s  *stack.Stack[*PooledRef[T]]
}

func newIdleStore[T any]() *idleStore[T] {
	return &idleStore[T]{s: stack.New[*PooledRef[T]]()}
}

func (s *idleStore[T]) push(ref *PooledRef[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Push(ref)
}

func (s *idleStore[T]) poll() *PooledRef[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.s.Pop()
	if !ok {
		return nil
	}
	return ref
}

func (s *idleStore[T]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s.Length()
}

// drainAll removes and returns every ref currently idle. Used by Shutdown
// to destroy the whole idle set exactly once.
func (s *idleStore[T]) drainAll() []*PooledRef[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*PooledRef[T]
	for {
		ref, ok := s.s.Pop()
		if !ok {
			break
		}
		out = append(out, ref)
	}
	return out
}
