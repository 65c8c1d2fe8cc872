package synth

import (
	"fmt"

	"go.bug.st/serial"
)

// Port is the serial link to one ArduTouch board. The board's reset
// line is wired to RTS, so toggling RTS resets the board.
type Port interface {
	Write(data []byte) error
	SetRTS(level bool) error
	Close() error
}

type serialPort struct {
	inner serial.Port
}

// OpenPort opens the USB-serial device for a board: 8 data bits, one
// stop bit, no parity.
func OpenPort(device string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	inner, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return &serialPort{inner: inner}, nil
}

func (p *serialPort) Write(data []byte) error {
	if _, err := p.inner.Write(data); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	// The board reads menu commands byte by byte, so push them out now.
	if err := p.inner.Drain(); err != nil {
		return fmt.Errorf("serial drain: %w", err)
	}
	return nil
}

func (p *serialPort) SetRTS(level bool) error {
	if err := p.inner.SetRTS(level); err != nil {
		return fmt.Errorf("serial set RTS: %w", err)
	}
	return nil
}

func (p *serialPort) Close() error {
	return p.inner.Close()
}
