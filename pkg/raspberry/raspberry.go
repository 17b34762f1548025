// Package raspberry holds the edge sources which feed the radio receiver.
//  gpiod:   gpio character device, edges are timestamped by the kernel
//  gpiomem: memory mapped gpio (/dev/gpiomem), edges are timestamped by the handler
//  serial:  a front-end which measures the pulses itself and sends their widths
package raspberry

import (
	"errors"
	"fmt"
	"io"

	"rfnode/pkg/port"
)

var (
	ErrInvalidParam = fmt.Errorf("invalid parameters")
	ErrNotSupported = errors.New("edge source not supported on this platform")
)

// EdgeHandler is called on every edge of the receiver output with the time of the edge.
// It runs in the context of the edge source and must not block.
type EdgeHandler func(t port.Micros)

// Source defines the edge source.
type Source struct {
	// Type is gpiod, gpiomem or serial.
	Type string
	// Chip is the gpio character device, e.g. gpiochip0.
	Chip string
	// Gpio is the line offset (BCM number) of the receiver data pin.
	Gpio int
	// Terminator is the pin bias: pullup, pulldown or none.
	Terminator string
	// Serial is the device of the serial front-end, e.g. /dev/ttyUSB0.
	Serial string
	// Baud is the baud rate of the serial front-end.
	Baud int
}

// Timestamped reports whether the source timestamps the edges itself instead of using the clock.
func (s Source) Timestamped() bool {
	return s.Type == "gpiod" || s.Type == "serial"
}

// Open starts watching the source. Edges are reported to h until the source is closed.
// clock timestamps edges of sources without own timestamps.
func Open(src Source, clock port.Clock, h EdgeHandler) (io.Closer, error) {
	switch src.Type {
	case "gpiod":
		return openLine(src, h)
	case "gpiomem":
		return openPin(src, clock, h)
	case "serial":
		return OpenSerial(src.Serial, src.Baud, clock, h)
	default:
		return nil, fmt.Errorf("%w: edge source %q", ErrInvalidParam, src.Type)
	}
}
