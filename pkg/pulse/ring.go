// Package pulse is the capture queue between the edge interrupt and the protocol decoder.
//
// The Ring is a single producer / single consumer queue of pulse durations.
// The producer (edge handler) owns the tail index, the consumer (poll loop) owns the head index.
// Each side writes its own index as the last step of an operation, so no lock is needed
// and the producer never blocks or allocates.
package pulse

import (
	"fmt"
	"sync/atomic"

	"rfnode/pkg/port"
)

// MaxSample is the largest storable duration. Bit 15 of a sample is reserved.
const MaxSample = 0x7FFF

// Sample is the time in microseconds between two consecutive edges.
type Sample uint16

// Ring holds the captured samples.
// One slot is always kept empty, so a ring of size N stores at most N-1 samples.
type Ring struct {
	// buf holds the samples, written by the producer at tail and read by the consumer at head.
	buf []Sample
	// size is len(buf).
	size uint32
	// head is the next sample to consume (consumer owned).
	head atomic.Uint32
	// tail is the next free slot (producer owned).
	tail atomic.Uint32
	// last is the counter value of the last accepted edge.
	last atomic.Uint32
	// enabled gates the producer.
	enabled atomic.Bool
	// armed is set while the next edge only sets the baseline.
	armed atomic.Bool
	// dropped counts edges lost because the ring was full.
	dropped atomic.Uint64
}

// Producer is the interrupt side view of a Ring.
type Producer struct {
	r *Ring
}

// Consumer is the poll side view of a Ring.
type Consumer struct {
	r *Ring
}

// NewRing allocates a ring with size slots. The usable capacity is size-1.
// The ring starts disabled.
func NewRing(size int) *Ring {
	if size < 2 {
		panic(fmt.Sprintf("pulse: ring size %d, need at least 2", size))
	}

	return &Ring{
		buf:  make([]Sample, size),
		size: uint32(size),
	}
}

// Producer returns the view for the edge handler.
func (r *Ring) Producer() Producer {
	return Producer{r: r}
}

// Consumer returns the view for the decoder.
func (r *Ring) Consumer() Consumer {
	return Consumer{r: r}
}

// Size returns the number of slots.
func (r *Ring) Size() int {
	return int(r.size)
}

// Capacity returns the number of samples the ring can hold.
func (r *Ring) Capacity() int {
	return int(r.size) - 1
}

// Count returns the number of queued samples.
func (r *Ring) Count() int {
	return int((r.tail.Load() + r.size - r.head.Load()) % r.size)
}

// IsFull reports whether a push would be rejected.
func (r *Ring) IsFull() bool {
	return r.Count() >= int(r.size)-1
}

// IsEmpty reports whether no sample is queued.
func (r *Ring) IsEmpty() bool {
	return r.Count() == 0
}

// Enable starts or stops the capture.
// Starting resets the elapsed time baseline to now, so the first sample after a pause
// measures from the resume instead of the last edge before the pause.
// Samples already queued stay available to the consumer.
func (r *Ring) Enable(on bool, now port.Micros) {
	if on {
		r.last.Store(uint32(now))
	}
	r.armed.Store(false)
	r.enabled.Store(on)
}

// EnableOnEdge starts the capture with the next edge as baseline.
// The edge itself queues no sample. It is used by edge sources whose timestamps
// do not share the time base of the consumer's clock.
func (r *Ring) EnableOnEdge() {
	r.armed.Store(true)
	r.enabled.Store(true)
}

// Enabled reports whether the producer accepts samples.
func (r *Ring) Enabled() bool {
	return r.enabled.Load()
}

// Dropped returns the number of edges lost to a full ring.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Push stores the time elapsed since the last accepted edge.
// It must only be called from the edge handler. It returns false if the capture
// is disabled or the ring is full, in which case the baseline is kept and the
// next accepted sample includes the lost time. The first edge after EnableOnEdge
// only sets the baseline and also returns false.
func (p Producer) Push(now port.Micros) bool {
	r := p.r
	if !r.enabled.Load() {
		return false
	}
	if r.armed.Load() {
		r.last.Store(uint32(now))
		r.armed.Store(false)
		return false
	}

	tail := r.tail.Load()
	next := (tail + 1) % r.size
	if next == r.head.Load() {
		r.dropped.Add(1)
		return false
	}

	d := now.Since(port.Micros(r.last.Load()))
	if d > MaxSample {
		d = MaxSample
	}

	r.last.Store(uint32(now))
	r.buf[tail] = Sample(d)
	// publish the slot only after it is written
	r.tail.Store(next)
	return true
}

// Count returns the number of queued samples.
func (c Consumer) Count() int {
	return c.r.Count()
}

// Peek returns the sample offset positions behind head without removing it.
// It returns 0 if fewer than offset+1 samples are queued.
func (c Consumer) Peek(offset int) Sample {
	if offset < 0 || offset >= c.r.Count() {
		return 0
	}

	r := c.r
	return r.buf[(r.head.Load()+uint32(offset))%r.size]
}

// Pop removes and returns the sample at head.
func (c Consumer) Pop() (Sample, bool) {
	if c.r.IsEmpty() {
		return 0, false
	}

	s := c.Peek(0)
	c.Advance(1)
	return s, true
}

// Advance retires k samples from head. It never retires more than are queued.
func (c Consumer) Advance(k int) {
	r := c.r
	if n := r.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return
	}

	r.head.Store((r.head.Load() + uint32(k)) % r.size)
}

// Flush retires every queued sample.
func (c Consumer) Flush() {
	c.r.head.Store(c.r.tail.Load())
}
