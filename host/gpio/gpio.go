// Package gpio drives the two mode-control lines of the dimmer MCU: the
// reset line (NRST) and the bootloader select line (BOOT0).
package gpio

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/spf13/afero"
)

// DefaultSysfsRoot is where the kernel exposes the legacy GPIO interface
const DefaultSysfsRoot = "/sys/class/gpio"

// Line is a digital output
type Line interface {
	Set(high bool) error
}

// LineFunc adapts a function to Line, e.g. a serial port's SetDTR
type LineFunc func(high bool) error

func (f LineFunc) Set(high bool) error {
	return f(high)
}

// NopLine accepts every level and does nothing, for boards without the line
type NopLine struct{}

func (NopLine) Set(bool) error { return nil }

// Inverted returns a line driven at the opposite level. USB serial adapters
// pull the pin low while DTR/RTS is asserted.
func Inverted(line Line) Line {
	return LineFunc(func(high bool) error {
		return line.Set(!high)
	})
}

// SysfsLine is an output pin controlled through /sys/class/gpio
type SysfsLine struct {
	fs   afero.Fs
	root string
	pin  int
}

// OpenSysfs exports pin if needed and configures it as an output
func OpenSysfs(fs afero.Fs, root string, pin int) (*SysfsLine, error) {
	if pin < 0 {
		return nil, fmt.Errorf("invalid gpio pin %d", pin)
	}
	if root == "" {
		root = DefaultSysfsRoot
	}

	l := &SysfsLine{fs: fs, root: root, pin: pin}

	exists, err := afero.DirExists(fs, l.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to stat gpio%d: %w", pin, err)
	}
	if !exists {
		if err := l.write(path.Join(root, "export"), strconv.Itoa(pin)); err != nil {
			return nil, fmt.Errorf("failed to export gpio%d: %w", pin, err)
		}
	}

	if err := l.write(path.Join(l.dir(), "direction"), "out"); err != nil {
		return nil, fmt.Errorf("failed to set gpio%d direction: %w", pin, err)
	}

	return l, nil
}

// Set drives the pin high or low
func (l *SysfsLine) Set(high bool) error {
	value := "0"
	if high {
		value = "1"
	}
	if err := l.write(path.Join(l.dir(), "value"), value); err != nil {
		return fmt.Errorf("failed to set gpio%d: %w", l.pin, err)
	}
	return nil
}

// Pin returns the kernel GPIO number
func (l *SysfsLine) Pin() int {
	return l.pin
}

func (l *SysfsLine) dir() string {
	return path.Join(l.root, "gpio"+strconv.Itoa(l.pin))
}

func (l *SysfsLine) write(name, value string) error {
	return afero.WriteFile(l.fs, name, []byte(value), os.FileMode(0o644))
}
