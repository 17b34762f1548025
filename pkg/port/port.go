// Package port holds the definition of the timestamp source used to measure pulses on a physical port.
package port

import (
	"sync/atomic"
	"time"
)

// Micros is a free running microsecond counter.
// It wraps at 2^32 (about 71 minutes), so durations must be computed with Since.
type Micros uint32

// Since returns the elapsed microseconds between last and m.
// The unsigned subtraction is correct across a single wrap of the counter.
func (m Micros) Since(last Micros) uint32 {
	return uint32(m - last)
}

// FromDuration converts a monotonic timestamp (e.g. a kernel event timestamp) to the wrapping counter.
func FromDuration(d time.Duration) Micros {
	return Micros(uint64(d / time.Microsecond))
}

// Clock is the timestamp source of the edge capture.
type Clock interface {
	// Now returns the current value of the microsecond counter.
	Now() Micros
}

// SystemClock counts microseconds since it was created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a new microsecond counter.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the microseconds since the clock was created, truncated to the counter width.
func (c *SystemClock) Now() Micros {
	return FromDuration(time.Since(c.start))
}

// ManualClock is a clock which is only moved by its owner.
// It is used to replay recorded pulses and in tests.
type ManualClock struct {
	now atomic.Uint32
}

// NewManualClock returns a clock standing at t.
func NewManualClock(t Micros) *ManualClock {
	c := &ManualClock{}
	c.now.Store(uint32(t))
	return c
}

// Now returns the current counter value.
func (c *ManualClock) Now() Micros {
	return Micros(c.now.Load())
}

// Set moves the clock to t.
func (c *ManualClock) Set(t Micros) {
	c.now.Store(uint32(t))
}

// Advance moves the clock forward by d microseconds and returns the new value.
func (c *ManualClock) Advance(d uint32) Micros {
	return Micros(c.now.Add(d))
}
