package simtime

import "sync/atomic"

// Clock stamps placements with a strictly increasing order tag.
//
// Order 0 is reserved for initial conditions, so the first call to Next
// returns 1. Insertion order, not wall time, breaks ties between placements
// at the same instant.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Plans only stamp while holding their write lock.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next order tag.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the last stamped order without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
