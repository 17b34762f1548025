//go:build linux

package raspberry

import (
	"fmt"
	"io"

	"github.com/warthog618/gpio"

	"rfnode/pkg/port"
)

// Pin is a memory mapped gpio pin watched for both edges.
type Pin struct {
	gpioPin *gpio.Pin
}

// openPin maps the gpio memory range from /dev/gpiomem and watches the pin.
// The edges are timestamped with clock when the handler runs.
func openPin(src Source, clock port.Clock, h EdgeHandler) (io.Closer, error) {
	if err := gpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpiomem: %w", err)
	}

	p := &Pin{gpioPin: gpio.NewPin(src.Gpio)}
	p.gpioPin.Input()

	switch src.Terminator {
	case "pullup":
		p.gpioPin.PullUp()
	case "pulldown":
		p.gpioPin.PullDown()
	case "none", "":
	default:
		_ = gpio.Close()
		return nil, fmt.Errorf("%w: terminator %q", ErrInvalidParam, src.Terminator)
	}

	if err := p.gpioPin.Watch(gpio.EdgeBoth, func(*gpio.Pin) { h(clock.Now()) }); err != nil {
		_ = gpio.Close()
		return nil, fmt.Errorf("watch pin %d: %w", src.Gpio, err)
	}

	return p, nil
}

// Close removes the watch and unmaps the gpio memory.
func (p *Pin) Close() error {
	p.gpioPin.Unwatch()
	return gpio.Close()
}
