// Package serialport opens the serial line of an SPC bit bridge.
package serialport

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal interface of a bit source port.
type Port interface {
	io.ReadWriter
	io.Closer
}

// DefaultBaudRate is the rate of the reference bit bridge firmware.
const DefaultBaudRate = 115200

// Open opens path as an 8N1 serial port. A positive readTimeout makes
// Read return (0, nil) when no sample arrives in time.
func Open(path string, baud int, readTimeout time.Duration) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err = port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}

// List returns the names of serial ports on the system.
func List() ([]string, error) {
	return serial.GetPortsList()
}
