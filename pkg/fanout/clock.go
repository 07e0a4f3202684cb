package fanout

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing nanosecond timestamps. Two messages
// written in the same wall-clock nanosecond still get distinct values, so
// the (created_at, message_id) ordering key never needs to break a tie
// between timestamps issued by the same process; the id tie-break covers
// concurrent writers on other processes.
type Clock struct {
	mu   sync.Mutex
	last int64
}

// Next returns a timestamp greater than every previous return value.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC().UnixNano()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}
