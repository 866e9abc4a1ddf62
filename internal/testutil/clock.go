package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually driven clock for timing tests.
//
// Now returns the current fake time and then advances it by Step, so a
// sequence of Start/Stop calls produces predictable durations without
// sleeping. Advance moves the time explicitly.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFakeClock creates a clock starting at a fixed instant that advances by
// step on every Now call. A zero step keeps time frozen until Advance.
func NewFakeClock(step time.Duration) *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

// Now returns the current fake time and advances it by the step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Elapsed returns how far the clock has moved since creation.
func (c *FakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}
