package services

import (
	"sync"
	"time"
)

// MonotonicClock wraps a time source so that successive readings never go
// backwards. Readings are UTC and truncated to microseconds, the precision the
// Postgres store keeps.
type MonotonicClock struct {
	mu   sync.Mutex
	src  func() time.Time
	last time.Time
}

// NewMonotonicClock returns a clock over src, or over time.Now when src is nil.
func NewMonotonicClock(src func() time.Time) *MonotonicClock {
	if src == nil {
		src = time.Now
	}
	return &MonotonicClock{src: src}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.src().UTC().Truncate(time.Microsecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
