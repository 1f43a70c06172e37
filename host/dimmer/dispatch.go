package dimmer

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"dimctl/protocol"
)

// handleFrame interprets a reply already correlated by the transceiver
func (d *Device) handleFrame(frame protocol.Frame) error {
	switch frame.Command {
	case protocol.CmdPoll:
		report, err := protocol.ParsePollReport(frame.Payload)
		if err != nil {
			return err
		}
		d.record(report)
		return nil

	case protocol.CmdVersion:
		v, err := protocol.ParseVersionReport(frame.Payload)
		if err != nil {
			return err
		}
		d.version = v
		d.haveVersion = true
		return nil

	case protocol.CmdSwitch, protocol.CmdSettings:
		return protocol.ParseStatus(frame.Command, frame.Payload)

	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedCommand, frame.Command)
	}
}

func (d *Device) record(report protocol.PollReport) {
	reading := Reading{
		HardwareRevision: report.HardwareRevision,
		Brightness:       report.Brightness,
		FadeRate:         report.FadeRate,
		Power:            report.Power(),
		Voltage:          report.Voltage(),
		Current:          report.Current(),
		At:               d.opts.clock.Now(),
	}
	d.reading = reading
	d.haveReading = true

	log.Info().
		Uint8("hw_version", reading.HardwareRevision).
		Uint16("brightness", reading.Brightness).
		Uint8("fade_rate", reading.FadeRate).
		Float64("power", reading.Power).
		Float64("voltage", reading.Voltage).
		Float64("current", reading.Current).
		Msg("got dimmer data")

	publish(d.opts.power, reading.Power)
	publish(d.opts.voltage, reading.Voltage)
	publish(d.opts.current, reading.Current)
	publish(d.opts.brightness, float64(reading.Brightness))
}

func publish(s Sink, value float64) {
	if s != nil {
		s.Publish(value)
	}
}
