package registry

import "sync/atomic"

// Clock is a monotonic logical clock used to stamp instance accesses.
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
