//go:build !linux

package raspberry

import (
	"io"

	"rfnode/pkg/port"
)

func openLine(Source, EdgeHandler) (io.Closer, error) {
	return nil, ErrNotSupported
}

func openPin(Source, port.Clock, EdgeHandler) (io.Closer, error) {
	return nil, ErrNotSupported
}
