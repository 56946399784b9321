package reactive

import "sync/atomic"

// Clock issues the sequence numbers that stamp ticks and property writes.
// Numbers are strictly increasing across goroutines; the journal orders
// rows by them.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first number is 1.
func NewClock() *Clock { return NewClockAt(0) }

// NewClockAt returns a clock that continues after last, for resuming a
// journaled run.
func NewClockAt(last int64) *Clock {
	var c Clock
	c.last.Store(last)
	return &c
}

// Next issues a number.
func (c *Clock) Next() int64 { return c.last.Add(1) }

// Current is the last number issued, or the starting point if none was.
func (c *Clock) Current() int64 { return c.last.Load() }
