package serial

import (
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// BugstPort wraps go.bug.st/serial, which supports live reconfiguration and
// the DTR/RTS modem lines
type BugstPort struct {
	port bugst.Port
	mode bugst.Mode
}

// OpenBugst opens a serial port through go.bug.st/serial
func OpenBugst(cfg *Config) (*BugstPort, error) {
	mode := bugst.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   bugstParity(cfg.Parity),
		StopBits: bugst.OneStopBit,
	}

	port, err := bugst.Open(cfg.Device, &mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(time.Duration(cfg.ReadTimeout) * time.Millisecond); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	return &BugstPort{port: port, mode: mode}, nil
}

func bugstParity(p Parity) bugst.Parity {
	if p == ParityEven {
		return bugst.EvenParity
	}
	return bugst.NoParity
}

func (p *BugstPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *BugstPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *BugstPort) Close() error {
	return p.port.Close()
}

// Flush waits until all output has been transmitted
func (p *BugstPort) Flush() error {
	return p.port.Drain()
}

func (p *BugstPort) ResetInput() error {
	return p.port.ResetInputBuffer()
}

func (p *BugstPort) SetParity(parity Parity) error {
	p.mode.Parity = bugstParity(parity)
	return p.port.SetMode(&p.mode)
}

func (p *BugstPort) SetDTR(level bool) error {
	return p.port.SetDTR(level)
}

func (p *BugstPort) SetRTS(level bool) error {
	return p.port.SetRTS(level)
}
