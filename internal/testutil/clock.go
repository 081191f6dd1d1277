package testutil

import (
	"sync"
	"time"
)

// FixedClock is a controllable wall clock for tests.
//
// Each call to Now returns the current time and then advances it by the
// configured step, so successive events get distinct, predictable
// timestamps. A zero step freezes time until Advance or Set is called.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFixedClock creates a clock starting at start.
func NewFixedClock(start time.Time, step time.Duration) *FixedClock {
	return &FixedClock{now: start.UTC(), step: step}
}

// Now returns the current time and advances the clock by one step.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the time the next Now call will report.
func (c *FixedClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
