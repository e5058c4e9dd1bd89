package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenRealPort opens a hardware port with go.bug.st/serial and applies the
// read timeout if one is set.
func OpenRealPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if t := opts.ReadTimeout(); t > 0 {
		if err := port.SetReadTimeout(t); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
		}
	}
	return port, nil
}

// OpenSerialMux opens path with open (OpenRealPort when nil) and wraps it.
func OpenSerialMux(path string, opts PortOptions, open PortOpener) (*SerialMux[SerialPorter], error) {
	if open == nil {
		open = OpenRealPort
	}
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
