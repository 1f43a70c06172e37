package stm32

import (
	"errors"
	"fmt"
)

// ErrNoResponse is returned when the bootloader does not answer in time
var ErrNoResponse = errors.New("no response from bootloader")

// NackError indicates the bootloader refused a command
type NackError struct {
	Command byte
	Stage   string
}

func (e *NackError) Error() string {
	return fmt.Sprintf("bootloader rejected command 0x%02X (%s)", e.Command, e.Stage)
}

// UnexpectedByteError indicates a reply that is neither ACK nor NACK
type UnexpectedByteError struct {
	Command byte
	Byte    byte
}

func (e *UnexpectedByteError) Error() string {
	return fmt.Sprintf("unexpected reply 0x%02X to command 0x%02X", e.Byte, e.Command)
}
