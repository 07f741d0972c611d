package gopool

import "time"

// Clock abstracts wall-clock time so that ref timestamps and IdleSince (and
// so idle-time eviction predicates) can be driven from tests without
// sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
