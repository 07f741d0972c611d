package gopool

import (
	"sync"
	"time"
)

// fakeClock is a manually-advanced Clock for deterministic tests of
// idle-time bookkeeping (the teacher has no equivalent since it always
// calls time.Now() directly).
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
