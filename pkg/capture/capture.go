// Package capture records raw pulse samples and replays them through a receiver.
// Recordings allow to tune a timing profile without the radio attached.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/womat/debug"

	"rfnode/pkg/port"
	"rfnode/pkg/pulse"
	"rfnode/pkg/radio"
)

var ErrEmptyRecording = errors.New("recording holds no samples")

// Recording is a sequence of pulse widths in microseconds, as queued by the edge handler.
type Recording struct {
	// Device is the name of the device type the recording was made for.
	Device string `cbor:"1,keyasint"`
	// Started is the time of the first sample.
	Started time.Time `cbor:"2,keyasint"`
	// Samples are the pulse widths.
	Samples []uint16 `cbor:"3,keyasint"`
}

// Add appends the samples queued in c and retires them.
func (r *Recording) Add(c pulse.Consumer) int {
	n := 0
	for {
		s, ok := c.Pop()
		if !ok {
			return n
		}
		r.Samples = append(r.Samples, uint16(s))
		n++
	}
}

// Write encodes the recording to w.
func Write(w io.Writer, r *Recording) error {
	if err := cbor.NewEncoder(w).Encode(r); err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	return nil
}

// Read decodes a recording from r.
func Read(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := cbor.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	if len(rec.Samples) == 0 {
		return nil, ErrEmptyRecording
	}
	return &rec, nil
}

// Replay feeds the samples of rec as edges to rx and calls fn with every decoded message.
// The clock must be the clock of rx; it is moved by the sample widths.
// rx is serviced after every sample, so no message is lost to an overrun.
func Replay(rec *Recording, rx *radio.Receiver, clock *port.ManualClock, fn func(msg []byte)) radio.Stats {
	b := make([]byte, rx.Profile().MaxMsgBytes)

	drain := func() {
		rx.Service()
		for {
			n, err := rx.Read(b)
			if err != nil {
				return
			}
			fn(b[:n])
		}
	}

	for i, s := range rec.Samples {
		if !rx.OnEdgeAt(clock.Advance(uint32(s))) {
			debug.ErrorLog.Printf("replay: sample %d not queued", i)
		}
		drain()
	}

	return rx.Stats()
}
