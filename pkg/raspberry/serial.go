package raspberry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/womat/debug"
	"go.bug.st/serial"

	"rfnode/pkg/port"
)

// SerialSource reads pulse widths from a serial front-end.
// The front-end sends every measured pulse as an unsigned 16 bit little endian value in microseconds.
type SerialSource struct {
	port serial.Port
	// done is closed when the reader stopped.
	done chan struct{}
}

// OpenSerial opens the serial device and reports every received pulse as an edge.
// The edge times are rebuilt from the widths, starting at clock.Now().
func OpenSerial(name string, baud int, clock port.Clock, h EdgeHandler) (*SerialSource, error) {
	if name == "" || baud <= 0 {
		return nil, fmt.Errorf("%w: serial %q, baud %d", ErrInvalidParam, name, baud)
	}

	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %q: %w", name, err)
	}

	s := &SerialSource{port: p, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := readWidths(p, clock.Now(), h); err != nil {
			debug.ErrorLog.Printf("serial %s: %v", name, err)
		}
	}()

	return s, nil
}

// Close closes the serial device and waits until the reader stopped.
func (s *SerialSource) Close() error {
	err := s.port.Close()
	<-s.done
	return err
}

// readWidths reads widths from r until EOF and calls h with the accumulated edge time.
func readWidths(r io.Reader, start port.Micros, h EdgeHandler) error {
	br := bufio.NewReader(r)
	t := start

	var b [2]byte
	for {
		if _, err := io.ReadFull(br, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		t += port.Micros(binary.LittleEndian.Uint16(b[:]))
		h(t)
	}
}
