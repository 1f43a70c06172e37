package dimmer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"dimctl/host/serial"
)

// resetNormal restarts the MCU into its application firmware (8N1)
func (d *Device) resetNormal(ctx context.Context) error {
	return d.reset(ctx, false, serial.ParityNone)
}

// resetBootloader restarts the MCU into the ROM bootloader (8E1)
func (d *Device) resetBootloader(ctx context.Context) error {
	return d.reset(ctx, true, serial.ParityEven)
}

func (d *Device) reset(ctx context.Context, boot0 bool, parity serial.Parity) error {
	if err := d.port.SetParity(parity); err != nil {
		return fmt.Errorf("failed to set parity %c: %w", parity, err)
	}
	if err := d.port.Flush(); err != nil {
		return fmt.Errorf("failed to flush port: %w", err)
	}

	log.Debug().Bool("boot0", boot0).Msg("resetting mcu")

	if err := d.opts.boot0.Set(boot0); err != nil {
		return fmt.Errorf("failed to set boot0: %w", err)
	}
	if err := d.opts.reset.Set(false); err != nil {
		return fmt.Errorf("failed to assert reset: %w", err)
	}

	if err := d.sleep(ctx, d.opts.resetDelay); err != nil {
		return err
	}

	// Whatever arrived before the reset is stale
	if err := d.port.ResetInput(); err != nil {
		return fmt.Errorf("failed to clear receive buffer: %w", err)
	}
	d.transport.Discard()

	if err := d.opts.reset.Set(true); err != nil {
		return fmt.Errorf("failed to release reset: %w", err)
	}

	if err := d.sleep(ctx, d.opts.bootDelay); err != nil {
		return err
	}

	log.Debug().Msg("reset mcu done")
	return nil
}

func (d *Device) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := d.opts.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
