package protocol

import (
	"encoding/binary"
	"fmt"
)

// Request payload sizes
const (
	SwitchPayloadSize   = 2
	SettingsPayloadSize = 10
)

// Minimum reply payload sizes
const (
	PollReportMinSize    = 16
	VersionReportMinSize = 2
	StatusReportMinSize  = 1
)

// Edge modes carried in the settings payload
const (
	EdgeLeading  = 0x01
	EdgeTrailing = 0x02
)

// MaxFadeRate is the largest fade rate the device accepts.
const MaxFadeRate = 100

// Calibration divisors for the raw poll report readings.
const (
	PowerScalingFactor   = 880373
	VoltageScalingFactor = 347800
	CurrentScalingFactor = 1448
)

// SwitchPayload encodes a brightness value (0-1000, tenths of a percent).
func SwitchPayload(brightness uint16) []byte {
	payload := make([]byte, SwitchPayloadSize)
	binary.LittleEndian.PutUint16(payload, brightness)
	return payload
}

// Settings is the content of a settings command.
type Settings struct {
	// Brightness is encoded but ignored by the device; send it again with a
	// switch command for it to take effect.
	Brightness       uint16
	LeadingEdge      bool
	FadeRate         uint16
	WarmupBrightness uint16
	WarmupTime       uint16
}

// Payload encodes the settings.
//
// Data format (10 bytes, little-endian):
//
//	[BRIGHTNESS(2)][EDGE(1)][RESERVED(1)][FADE_RATE(2)][WARMUP_BRIGHTNESS(2)][WARMUP_TIME(2)]
func (s Settings) Payload() []byte {
	payload := make([]byte, SettingsPayloadSize)
	binary.LittleEndian.PutUint16(payload[0:2], s.Brightness)
	if s.LeadingEdge {
		payload[2] = EdgeLeading
	} else {
		payload[2] = EdgeTrailing
	}
	binary.LittleEndian.PutUint16(payload[4:6], min(s.FadeRate, MaxFadeRate))
	binary.LittleEndian.PutUint16(payload[6:8], s.WarmupBrightness)
	binary.LittleEndian.PutUint16(payload[8:10], s.WarmupTime)
	return payload
}

// PollReport is the decoded reply to a poll command.
type PollReport struct {
	HardwareRevision uint8
	Brightness       uint16
	PowerRaw         uint32
	VoltageRaw       uint32
	CurrentRaw       uint32
	FadeRate         uint8
}

// ParsePollReport decodes a poll reply.
//
// Data format (little-endian):
//
//	[HW_REV(1)][RESERVED(1)][BRIGHTNESS(2)][POWER(4)][VOLTAGE(4)][CURRENT(4)][FADE_RATE(1)]
//
// The trailing fade rate byte is optional.
func ParsePollReport(payload []byte) (PollReport, error) {
	if len(payload) < PollReportMinSize {
		return PollReport{}, &PayloadLengthError{Command: CmdPoll, Length: len(payload), Min: PollReportMinSize}
	}

	report := PollReport{
		HardwareRevision: payload[0],
		Brightness:       binary.LittleEndian.Uint16(payload[2:4]),
		PowerRaw:         binary.LittleEndian.Uint32(payload[4:8]),
		VoltageRaw:       binary.LittleEndian.Uint32(payload[8:12]),
		CurrentRaw:       binary.LittleEndian.Uint32(payload[12:16]),
	}
	if len(payload) > PollReportMinSize {
		report.FadeRate = payload[16]
	}

	return report, nil
}

// Power returns the active power in watts
func (r PollReport) Power() float64 {
	return scale(PowerScalingFactor, r.PowerRaw)
}

// Voltage returns the mains voltage in volts
func (r PollReport) Voltage() float64 {
	return scale(VoltageScalingFactor, r.VoltageRaw)
}

// Current returns the load current in amps
func (r PollReport) Current() float64 {
	return scale(CurrentScalingFactor, r.CurrentRaw)
}

// A raw reading of zero means no load, not an error.
func scale(factor float64, raw uint32) float64 {
	if raw == 0 {
		return 0
	}
	return factor / float64(raw)
}

// Version is a firmware version reported by the device.
type Version struct {
	Major uint8
	Minor uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersionReport decodes a version reply: [MINOR(1)][MAJOR(1)]
func ParseVersionReport(payload []byte) (Version, error) {
	if len(payload) < VersionReportMinSize {
		return Version{}, &PayloadLengthError{Command: CmdVersion, Length: len(payload), Min: VersionReportMinSize}
	}
	return Version{Major: payload[1], Minor: payload[0]}, nil
}

// ParseStatus checks a switch or settings acknowledgement.
func ParseStatus(cmd Command, payload []byte) error {
	if len(payload) < StatusReportMinSize {
		return &PayloadLengthError{Command: cmd, Length: len(payload), Min: StatusReportMinSize}
	}
	if payload[0] != StatusOK {
		return &StatusError{Command: cmd, Status: payload[0]}
	}
	return nil
}
