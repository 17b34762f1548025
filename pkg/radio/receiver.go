// Package radio is the decoder of pulse trains from a digital RF receiver (e.g. RXB6).
//
// The edge interrupt only queues pulse widths (OnEdge). The poll loop runs the protocol
// state machine (Service) and fetches completed messages (TakeMessage, Read).
//  The transmission starts with a train of sync pulses.
//  Each data bit is a pulse pair: long/short is a 1, short/long is a 0, MSB first.
//  A short pulse followed by a long gap terminates the transmission.
package radio

import (
	"fmt"
	"io"

	"github.com/womat/debug"

	"rfnode/pkg/port"
	"rfnode/pkg/pulse"
)

const (
	// SyncSeek drops pulses until a sync pulse is at head.
	SyncSeek State = iota
	// SyncPulseTrain checks for a complete sync train.
	SyncPulseTrain
	// AccumulateWait waits for the pulses of a minimum size message.
	AccumulateWait
	// AccumulateData decodes bits into the pending message.
	AccumulateData
	// PostData validates and publishes the message.
	PostData
)

// State represents the state of the decoding process.
type State uint8

func (s State) String() string {
	switch s {
	case SyncSeek:
		return "sync-seek"
	case SyncPulseTrain:
		return "sync-pulse-train"
	case AccumulateWait:
		return "accumulate-wait"
	case AccumulateData:
		return "accumulate-data"
	case PostData:
		return "post-data"
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Receiver captures and decodes radio messages.
//
// OnEdge and OnEdgeAt are the only methods safe to call from the edge handler.
// Enable may be called from any goroutine. All other methods belong to a single poll goroutine.
type Receiver struct {
	// ring is the pulse queue shared with the edge handler.
	ring *pulse.Ring
	// in is the edge handler side of ring.
	in pulse.Producer
	// out is the decoder side of ring.
	out pulse.Consumer
	// clock is the timestamp source of OnEdge.
	clock port.Clock

	// device is the selected device type.
	device DeviceType
	// profile is the timing of the selected device type.
	profile Profile
	// configured is set once a device type is selected.
	configured bool

	// state is the current state of the decoding process.
	state State
	// bitIndex is the number of bits written to the pending message.
	bitIndex int
	// store holds the pending and the ready message.
	store store
	// stats are the decode counters.
	stats counters
	// droppedBase is the ring drop count when the device type was selected.
	droppedBase uint64
	// edgeBaseline makes the first edge after enabling the baseline instead of clock.Now.
	edgeBaseline bool
}

// New allocates a receiver with a pulse queue of size slots.
// The size must exceed the number of edges arriving between two Service calls.
// Capture starts with SelectDeviceType or SetProfile.
func New(size int, clock port.Clock) *Receiver {
	ring := pulse.NewRing(size)
	return &Receiver{
		ring:  ring,
		in:    ring.Producer(),
		out:   ring.Consumer(),
		clock: clock,
		state: SyncSeek,
	}
}

// SelectDeviceType sets the timing profile of a device type and enables the capture.
func (r *Receiver) SelectDeviceType(d DeviceType) error {
	p, err := DeviceProfile(d)
	if err != nil {
		return err
	}

	if err = r.SetProfile(p); err != nil {
		return err
	}

	r.device = d
	return nil
}

// SetProfile sets a custom timing profile and enables the capture.
// Queued pulses, a waiting message and the counters are discarded.
// The pulse queue must hold at least p.MinQueue samples.
func (r *Receiver) SetProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if n := p.MinQueue(); r.ring.Capacity() < n {
		return fmt.Errorf("%w: pulse queue holds %d samples, need %d", ErrInvalidProfile, r.ring.Capacity(), n)
	}

	r.ring.Enable(false, 0)
	r.out.Flush()

	r.device = DeviceCustom
	r.profile = p
	r.store = newStore(p.MaxMsgBytes)
	r.stats = counters{}
	r.droppedBase = r.ring.Dropped()
	r.state = SyncSeek
	r.bitIndex = 0
	r.configured = true

	debug.InfoLog.Printf("radio timing: sync %d, short %d, long %d, termination %d, tolerance %d usec, message %d..%d bytes",
		p.SyncWidth, p.ShortWidth, p.LongWidth, p.TerminationMin, p.Tolerance, p.MinMsgBytes, p.MaxMsgBytes)

	r.start()
	return nil
}

// BaselineFromEdge selects how the capture measures the first pulse after it was enabled.
// With on set, the first edge is the baseline. Edge sources with own timestamps
// (OnEdgeAt with kernel or front-end time) need it, since their time base differs from
// the receiver clock. Call it before SelectDeviceType or SetProfile.
func (r *Receiver) BaselineFromEdge(on bool) {
	r.edgeBaseline = on
}

// start turns the capture on.
func (r *Receiver) start() {
	if r.edgeBaseline {
		r.ring.EnableOnEdge()
		return
	}
	// capture the time right before the capture is turned on
	r.ring.Enable(true, r.clock.Now())
}

// Enable pauses or resumes the capture without changing the profile (e.g. during updates).
// A decode in progress is abandoned on the next Service call.
func (r *Receiver) Enable(on bool) {
	if on {
		r.start()
		return
	}
	r.ring.Enable(false, 0)
}

// Enabled reports whether the capture is running.
func (r *Receiver) Enabled() bool {
	return r.ring.Enabled()
}

// Device returns the selected device type.
func (r *Receiver) Device() DeviceType {
	return r.device
}

// Profile returns the timing profile in use.
func (r *Receiver) Profile() Profile {
	return r.profile
}

// OnEdge queues the time since the previous edge. Call it from the edge interrupt.
// It never blocks and never allocates; it returns false if the sample was not queued.
func (r *Receiver) OnEdge() bool {
	return r.in.Push(r.clock.Now())
}

// OnEdgeAt is OnEdge for edge sources which timestamp the edge themselves.
func (r *Receiver) OnEdgeAt(t port.Micros) bool {
	return r.in.Push(t)
}

// Queued returns the number of samples in the pulse queue.
func (r *Receiver) Queued() int {
	return r.ring.Count()
}

// Capacity returns the number of samples the pulse queue can hold.
func (r *Receiver) Capacity() int {
	return r.ring.Capacity()
}

// Service runs the state machine as long as the queued pulses allow progress.
// Incomplete data never blocks; the state is kept for the next call.
func (r *Receiver) Service() {
	if !r.configured {
		return
	}

	if !r.ring.Enabled() {
		if r.state != SyncSeek {
			debug.DebugLog.Printf("radio disabled in state %v, restart sync search", r.state)
			r.state = SyncSeek
		}
		return
	}

	for r.step() {
	}
}

// step runs the current state once. It returns true if the state changed.
func (r *Receiver) step() bool {
	switch r.state {
	case SyncSeek:
		return r.seek()
	case SyncPulseTrain:
		return r.syncPulseTrain()
	case AccumulateWait:
		return r.accumulateWait()
	case AccumulateData:
		return r.accumulateData()
	case PostData:
		r.postData()
		return true
	}

	r.state = SyncSeek
	return true
}

// seek drops pulses until a sync pulse is at head.
func (r *Receiver) seek() bool {
	for r.out.Count() > 0 {
		if r.profile.Classify(r.out.Peek(0)) == Sync {
			r.state = SyncPulseTrain
			return true
		}
		r.out.Advance(1)
	}
	return false
}

// syncPulseTrain waits for enough pulses and checks the sync train at head.
// The number of sync pulses varies (e.g. 8-9 for an RXB6).
func (r *Receiver) syncPulseTrain() bool {
	if r.out.Count() < syncWindow(&r.profile) {
		return false
	}

	t, ok := consumeSyncTrain(r.out, &r.profile)
	if !ok {
		debug.TraceLog.Printf("no sync train (%d sync pulses)", t.count)
		r.state = SyncSeek
		return true
	}

	r.stats.syncMin, r.stats.syncMax = t.min, t.max
	debug.TraceLog.Printf("sync found, %d pulses, min/max: %d/%d", t.count, t.min, t.max)

	r.bitIndex = 0
	r.store.clearPending()
	r.state = AccumulateWait
	return true
}

// accumulateWait waits until the pulses of a minimum size message are queued.
func (r *Receiver) accumulateWait() bool {
	// 8 bits per byte, 2 pulses per bit
	if r.out.Count() < r.profile.MinMsgBytes*8*2 {
		return false
	}

	r.state = AccumulateData
	return true
}

// accumulateData packs bits MSB first into the pending message until a non data pulse pair.
// A message exceeding the max size is kept, truncated to the max size.
func (r *Receiver) accumulateData() bool {
	buf := r.store.pendingBuf()

	for r.out.Count() >= 2 {
		bit := decodeBit(r.out, &r.profile)
		switch bit {
		case Bit0, Bit1:
			i := r.bitIndex >> 3
			if i >= r.profile.MaxMsgBytes {
				r.stats.oversized++
				debug.DebugLog.Printf("message size exceeds max (%d bytes), truncating", r.profile.MaxMsgBytes)
				r.state = PostData
				return true
			}

			if bit == Bit1 {
				buf[i] |= 1 << (7 - r.bitIndex%8)
			}
			r.bitIndex++

		case BitTermination, BitInvalid:
			// the pulses stay queued and are dropped by the sync search
			if bit == BitInvalid {
				debug.TraceLog.Printf("data stream terminated at bit %d, pulses %d,%d", r.bitIndex, r.out.Peek(0), r.out.Peek(1))
			}
			r.state = PostData
			return true
		}
	}

	return false
}

// postData publishes the pending message if it holds at least the min number of
// complete bytes and the previous message was taken.
func (r *Receiver) postData() {
	r.stats.attempts++
	n := r.bitIndex >> 3

	switch {
	case r.bitIndex == 0 || r.bitIndex%8 != 0:
		r.stats.errors++
		debug.DebugLog.Printf("incomplete data byte received (%d bits), dropping message", r.bitIndex)
	case n < r.profile.MinMsgBytes:
		r.stats.errors++
		debug.DebugLog.Printf("message size below min (%d of %d bytes), dropping message", n, r.profile.MinMsgBytes)
	case r.store.ready():
		r.stats.overruns++
		debug.DebugLog.Print("message overrun, previous message not read yet")
	default:
		r.store.publish(n)
		debug.TraceLog.Printf("message received, %d bytes", n)
	}

	r.state = SyncSeek
}

// TakeMessage copies the last decoded message to b and releases it.
// It returns the number of copied bytes, 0 if no message is waiting.
// A message longer than b is truncated.
func (r *Receiver) TakeMessage(b []byte) int {
	return r.store.take(b)
}

// Read is TakeMessage as io.Reader: it returns io.EOF if no message is waiting.
func (r *Receiver) Read(b []byte) (int, error) {
	if !r.configured {
		return 0, ErrReceiverNotReady
	}

	if !r.store.ready() {
		return 0, io.EOF
	}
	return r.store.take(b), nil
}

// Stats returns a snapshot of the decode counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Attempts:  r.stats.attempts,
		Errors:    r.stats.errors,
		Overruns:  r.stats.overruns,
		Oversized: r.stats.oversized,
		Dropped:   r.ring.Dropped() - r.droppedBase,
		SyncMin:   r.stats.syncMin,
		SyncMax:   r.stats.syncMax,
		State:     r.state,
		Queued:    r.ring.Count(),
		Ready:     r.store.size,
	}
}
