package serialmux

import (
	"io"
	"time"
)

// SerialPorter is the minimal port surface the mux needs; tests substitute
// in-memory ports for real hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that support a read timeout.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// PortOpener opens a port at path. OpenSerialMux uses it so tests can
// inject ports.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)
