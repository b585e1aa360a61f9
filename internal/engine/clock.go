package engine

import "sync/atomic"

// Clock is the monotonic logical clock that numbers operations.
//
// Every executed operation, accepted or rejected, takes the next seq. The
// seq orders the journal and, together with the event index, the event
// history. Replay of the same journal yields the same numbering.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next seq is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
