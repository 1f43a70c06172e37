package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// NativePort wraps the tarm/serial implementation
type NativePort struct {
	port *serial.Port
	cfg  Config
}

// OpenNative opens a serial port through tarm/serial
func OpenNative(cfg *Config) (*NativePort, error) {
	p := &NativePort{cfg: *cfg}
	if p.cfg.Parity == 0 {
		p.cfg.Parity = ParityNone
	}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *NativePort) open() error {
	serialConfig := &serial.Config{
		Name:        p.cfg.Device,
		Baud:        p.cfg.Baud,
		ReadTimeout: time.Duration(p.cfg.ReadTimeout) * time.Millisecond,
		Size:        8,
		Parity:      serial.Parity(p.cfg.Parity),
		StopBits:    serial.Stop1,
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", p.cfg.Device, err)
	}
	p.port = port
	return nil
}

// Read reads data from the serial port. tarm/serial reports a read timeout
// as (0, io.EOF).
func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes data to the serial port
func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the serial port
func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush is a no-op: tarm/serial writes go straight to the tty and its own
// Flush discards pending data rather than draining it
func (p *NativePort) Flush() error {
	return nil
}

// ResetInput discards buffered data in both directions
func (p *NativePort) ResetInput() error {
	return p.port.Flush()
}

// SetParity reopens the port with the new parity; tarm/serial cannot change
// the line settings of an open port
func (p *NativePort) SetParity(parity Parity) error {
	if parity == p.cfg.Parity {
		return nil
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("failed to close serial port for reconfigure: %w", err)
	}
	p.cfg.Parity = parity
	return p.open()
}
