// Package testutil provides small deterministic helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic time source for tests: each Now call returns
// the current instant and advances by a fixed step, so durations and
// timestamps in results are stable and assertable.
//
// Safe for concurrent use, although the executor and builder call it
// strictly sequentially.
type Clock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

// NewClock creates a Clock starting at start, advancing by step per
// Now call.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{t: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// Current returns the current instant without advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}
