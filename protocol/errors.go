package protocol

import (
	"errors"
	"fmt"
)

// ErrNoReply is returned by the transceiver when every attempt timed out
// without a reply carrying the outstanding sequence number.
var ErrNoReply = errors.New("no reply from device")

// ErrBufferFull is returned when a FrameBuffer would exceed its capacity.
var ErrBufferFull = errors.New("frame buffer full")

// FramingError reports a byte that cannot belong to a well formed frame:
// a bad start or end marker, or a declared length that does not fit.
type FramingError struct {
	Reason   string
	Position int
	Byte     byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error at position %d: %s (0x%02x)", e.Position, e.Reason, e.Byte)
}

// ChecksumError reports a frame whose checksum does not match its contents.
type ChecksumError struct {
	Expected uint16
	Actual   uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: frame carries 0x%04x, computed 0x%04x", e.Actual, e.Expected)
}

// PayloadTooLargeError is returned when encoding a payload over MaxPayloadSize.
type PayloadTooLargeError struct {
	Length int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload length %d exceeds maximum %d bytes", e.Length, MaxPayloadSize)
}

// PayloadLengthError is returned when a reply payload is shorter than its
// command requires.
type PayloadLengthError struct {
	Command Command
	Length  int
	Min     int
}

func (e *PayloadLengthError) Error() string {
	return fmt.Sprintf("%s reply too short: got %d bytes, need at least %d", e.Command, e.Length, e.Min)
}

// StatusError reports an acknowledgement carrying a status other than StatusOK.
type StatusError struct {
	Command Command
	Status  byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s rejected by device: status 0x%02x", e.Command, e.Status)
}

// DispatchError wraps a handler failure for a reply that did match the
// outstanding sequence. The device answered, so the command is not retried.
type DispatchError struct {
	Command Command
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s reply: %v", e.Command, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDispatchError returns true if the error is (or wraps) a DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}
