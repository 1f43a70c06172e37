package dimmer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"dimctl/protocol"
)

// WriteState sets the light to a normalized level. Unchanged values are
// not sent again.
func (d *Device) WriteState(ctx context.Context, level float64) error {
	if err := d.checkReady(); err != nil {
		return err
	}

	value := d.ConvertBrightness(level)
	if value == d.brightness {
		log.Trace().Uint16("brightness", value).Msg("not sending unchanged value")
		return nil
	}

	log.Debug().Uint16("brightness", value).Float64("level", level).Msg("brightness update")
	return d.SendBrightness(ctx, value)
}

// SendBrightness sends a switch command with a raw 0-1000 value
func (d *Device) SendBrightness(ctx context.Context, value uint16) error {
	if err := d.send(ctx, protocol.CmdSwitch, protocol.SwitchPayload(value)); err != nil {
		return err
	}
	d.brightness = value
	return nil
}

// SendSettings sends the configured settings followed by a switch command
// with the same brightness, since the MCU ignores the brightness field of
// the settings payload. Both commands are always sent.
func (d *Device) SendSettings(ctx context.Context) error {
	level := 0.0
	if d.opts.source != nil {
		level = d.opts.source()
	}
	value := d.ConvertBrightness(level)

	cfg := d.opts.config
	settings := protocol.Settings{
		Brightness:       value,
		LeadingEdge:      cfg.LeadingEdge,
		FadeRate:         cfg.FadeRate,
		WarmupBrightness: cfg.WarmupBrightness,
		WarmupTime:       cfg.WarmupTime,
	}

	log.Debug().Uint16("brightness", value).Float64("level", level).Bool("leading_edge", cfg.LeadingEdge).
		Uint16("fade_rate", min(cfg.FadeRate, protocol.MaxFadeRate)).Msg("sending settings")

	errSettings := d.send(ctx, protocol.CmdSettings, settings.Payload())
	errSwitch := d.SendBrightness(ctx, value)
	return errors.Join(errSettings, errSwitch)
}

// Poll requests a telemetry report; the reading is published to the sinks
func (d *Device) Poll(ctx context.Context) error {
	return d.send(ctx, protocol.CmdPoll, nil)
}

// RequestVersion asks the MCU for its firmware version
func (d *Device) RequestVersion(ctx context.Context) (protocol.Version, error) {
	d.haveVersion = false
	if err := d.send(ctx, protocol.CmdVersion, nil); err != nil {
		return protocol.Version{}, err
	}
	if !d.haveVersion {
		// A correlated reply with another command id was accepted instead
		return protocol.Version{}, fmt.Errorf("%w: no version report", ErrUnexpectedCommand)
	}
	return d.version, nil
}

func (d *Device) send(ctx context.Context, cmd protocol.Command, payload []byte) error {
	if d.failed {
		return ErrFailed
	}
	if err := d.transport.SendCommand(ctx, cmd, payload); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

func (d *Device) checkReady() error {
	if d.failed {
		return ErrFailed
	}
	if !d.ready {
		return ErrNotReady
	}
	return nil
}
