package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// The Cortex stamps each Process call with a tick from its clock and the
// Runner stamps every recorded event with a seq from its own. Neither
// ever consults wall-clock time, so a replayed session numbers its events
// identically.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific value.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
