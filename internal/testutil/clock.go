package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start instant of FakeClock.
var Epoch = time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock for tests and replays.
//
// Unlike engine.SystemClock, FakeClock only moves when told to, so the same
// event sequence always produces identical spans.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock at start. A zero start uses Epoch.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeClock{now: start}
}

// Now returns the current fake instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
// Negative durations are ignored: the clock never goes backwards.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// AdvanceMs is Advance in milliseconds.
func (c *FakeClock) AdvanceMs(ms int64) time.Time {
	return c.Advance(time.Duration(ms) * time.Millisecond)
}

// Elapsed returns the time since start.
func (c *FakeClock) Elapsed(start time.Time) time.Duration {
	return c.Now().Sub(start)
}
