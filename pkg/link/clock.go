// ABOUTME: Host time sources in microseconds
// ABOUTME: Monotonic system clock and a settable clock for tests and traces
package link

import (
	"sync"
	"time"
)

// Clock supplies host time in microseconds.
type Clock interface {
	Now() uint64
}

// SystemClock is a monotonic clock counting microseconds since creation.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock starting at zero
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns microseconds elapsed since the clock was created
func (c *SystemClock) Now() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock creates a clock at the given host time
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current host time
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps to an absolute host time
func (c *ManualClock) Set(t uint64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward and returns the new host time
func (c *ManualClock) Advance(d time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += uint64(d.Microseconds())
	return c.now
}
