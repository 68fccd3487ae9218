package sequencer

import (
	"sync"
	"time"
)

// Clock is the external time source in seconds. It is monotonic but its origin
// is arbitrary.
type Clock interface {
	Now() float64
}

// SystemClock reads the monotonic wall clock.
type SystemClock struct {
	origin time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

func (c *SystemClock) Now() float64 {
	return time.Since(c.origin).Seconds()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu sync.Mutex
	t  float64
}

func NewManualClock(start float64) *ManualClock {
	return &ManualClock{t: start}
}

func (c *ManualClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Set(t float64) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d float64) {
	c.mu.Lock()
	c.t += d
	c.mu.Unlock()
}
