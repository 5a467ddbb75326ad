// Package testutil provides deterministic collaborators for tests:
// a frozen clock and a sequential run-ID generator.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// Clock is a thread-safe deterministic time source for tests. Every
// call to Now advances the clock by a fixed step, so durations are
// reproducible across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock frozen at base that advances by step on
// every Now call. A zero step makes the clock fully static.
func NewClock(base time.Time, step time.Duration) *Clock {
	return &Clock{now: base, step: step}
}

// Now returns the current time and advances the clock by the step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Reset rewinds the clock to base for test reuse.
func (c *Clock) Reset(base time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = base
}

// RunIDs is a deterministic run-ID generator: run-0001, run-0002, ...
// Implements ir.RunIDGenerator.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RunIDs struct {
	mu  sync.Mutex
	seq int
}

// NewRunIDs creates a generator starting at run-0001.
func NewRunIDs() *RunIDs {
	return &RunIDs{}
}

// NewRunID returns the next sequential run ID.
func (g *RunIDs) NewRunID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("run-%04d", g.seq)
}

// Reset rewinds the sequence for test reuse. After Reset, the next ID
// is run-0001 again.
func (g *RunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
