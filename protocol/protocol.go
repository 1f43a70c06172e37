// Package protocol implements the framed serial protocol spoken by the dimmer
// microcontroller: frame encoding, incremental parsing, typed payloads and the
// host side command transceiver.
package protocol

import "fmt"

// Frame layout constants
const (
	StartByte = 0x01 // Start of frame marker
	EndByte   = 0x04 // End of frame marker

	HeaderSize  = 4 // start + sequence + command + length
	TrailerSize = 3 // checksum (2) + end marker

	MaxPayloadSize = 72
	MaxFrameSize   = HeaderSize + MaxPayloadSize + TrailerSize

	PositionSeq = 1
	PositionCmd = 2
	PositionLen = 3
)

// StatusOK is the status code the peer returns when it accepted a command.
const StatusOK = 0x01

// Command identifies a request and its reply.
type Command uint8

// Supported commands
const (
	CmdSwitch   Command = 0x01
	CmdPoll     Command = 0x10
	CmdVersion  Command = 0x11
	CmdSettings Command = 0x20
)

func (c Command) String() string {
	switch c {
	case CmdSwitch:
		return "switch"
	case CmdPoll:
		return "poll"
	case CmdVersion:
		return "version"
	case CmdSettings:
		return "settings"
	default:
		return fmt.Sprintf("cmd(0x%02x)", uint8(c))
	}
}

// Frame is one decoded protocol message.
type Frame struct {
	Sequence uint8
	Command  Command
	Payload  []byte
}
