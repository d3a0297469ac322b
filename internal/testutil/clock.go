package testutil

import (
	"fmt"
	"sync"
	"time"
)

// Clock is a deterministic wall clock for tests. Each call to Now advances
// it by Step, so start and finish times of a run differ but are stable
// across test runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewClock creates a clock whose first Now returns start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start, Step: time.Second}
}

// Now returns the current time and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// IDs generates run ids "run-0001", "run-0002", ... in place of random
// UUIDs so golden output is byte-identical.
type IDs struct {
	mu  sync.Mutex
	seq int
}

// Generate returns the next id.
func (g *IDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("run-%04d", g.seq)
}
