package testutil

import (
	"sync"
	"time"
)

// FixedClock is a manually advanced clock for tests.
//
// It satisfies ledger.Clock, so payment-date defaults and revision markers
// come out identical on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// NewFixedClockOn creates a clock stopped at noon UTC on the given day.
// Panics if day is not YYYY-MM-DD.
func NewFixedClockOn(day string) *FixedClock {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return NewFixedClock(t.Add(12 * time.Hour))
}

// Now returns the current time of the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AdvanceDays moves the clock forward by n calendar days.
func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}
