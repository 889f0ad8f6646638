package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping queue entries with a
// strictly increasing seq. Enqueue order, not wall time, is what the
// sync processor replays by, so restarts must never reuse a position.
//
// Thread-safety: atomic; safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock resuming from a known position, typically
// the queue's highest persisted seq. The next call to Next returns
// start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the clock position without advancing it.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
