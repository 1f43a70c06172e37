package serial

import (
	"fmt"
	"io"
)

// Parity selects the UART parity mode
type Parity byte

const (
	// ParityNone is used while the dimmer runs its application firmware (8N1)
	ParityNone Parity = 'N'
	// ParityEven is required by the STM32 ROM bootloader (8E1)
	ParityEven Parity = 'E'
)

// Supported drivers
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - go.bug.st/serial, which also drives the DTR/RTS modem lines
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush waits for buffered output to be transmitted
	Flush() error

	// ResetInput discards received but unread data
	ResetInput() error

	// SetParity reconfigures the line, keeping every other setting
	SetParity(parity Parity) error
}

// ModemControl is implemented by ports that can drive DTR and RTS, which
// USB serial adapters commonly wire to the reset and boot pins.
type ModemControl interface {
	SetDTR(level bool) error
	SetRTS(level bool) error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyS1", "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate (the dimmer runs at 115200)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int

	// Parity used when the port is opened
	Parity Parity

	// Driver is DriverTarm (default) or DriverBugst
	Driver string
}

// DefaultConfig returns a default configuration for the dimmer link
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50,
		Parity:      ParityNone,
		Driver:      DriverTarm,
	}
}

// Open opens a serial port with the configured driver
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var (
		port Port
		err  error
	)
	switch cfg.Driver {
	case "", DriverTarm:
		port, err = OpenNative(cfg)
	case DriverBugst:
		port, err = OpenBugst(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return port, nil
}
