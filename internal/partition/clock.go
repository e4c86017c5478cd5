package partition

import "sync/atomic"

// Clock numbers applied commands.
//
// Every committed command is stamped with a strictly increasing sequence
// number, giving tests and logs a total apply order that does not depend on
// wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the processor goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
