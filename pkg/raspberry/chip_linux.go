//go:build linux

package raspberry

import (
	"fmt"
	"io"

	"github.com/warthog618/gpiod"

	"rfnode/pkg/port"
)

// Line is a line of a gpio chip watched for both edges.
type Line struct {
	gpiodChip *gpiod.Chip
	gpiodLine *gpiod.Line
}

// openLine requests a single line of the chip as input and reports both edges with
// the kernel event timestamp.
// There can only be one watcher on the line at a time.
func openLine(src Source, h EdgeHandler) (io.Closer, error) {
	c, err := gpiod.NewChip(src.Chip)
	if err != nil {
		return nil, fmt.Errorf("open chip %q: %w", src.Chip, err)
	}

	handler := func(evt gpiod.LineEvent) {
		h(port.FromDuration(evt.Timestamp))
	}

	l := &Line{gpiodChip: c}
	switch src.Terminator {
	case "pullup":
		l.gpiodLine, err = c.RequestLine(src.Gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullUp)
	case "pulldown":
		l.gpiodLine, err = c.RequestLine(src.Gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullDown)
	case "none", "":
		l.gpiodLine, err = c.RequestLine(src.Gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput)
	default:
		_ = c.Close()
		return nil, fmt.Errorf("%w: terminator %q", ErrInvalidParam, src.Terminator)
	}

	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("request line %d: %w", src.Gpio, err)
	}

	return l, nil
}

// Close releases the line and the chip.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence the Close must not be called from the context of the event
// handler - the Close should be called from a different goroutine.
func (l *Line) Close() error {
	if err := l.gpiodLine.Close(); err != nil {
		return err
	}
	return l.gpiodChip.Close()
}
