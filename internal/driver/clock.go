package driver

import "sync/atomic"

// SeqClock hands out strictly increasing event sequence numbers.
// testutil.DeterministicClock satisfies it for tests.
type SeqClock interface {
	Next() int64
	Current() int64
}

// Clock is the default SeqClock. Safe for concurrent use, though only the
// Run goroutine advances it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
