package dimmer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"dimctl/host/firmware"
)

// UpgradeState is the position in the firmware version gate
type UpgradeState int

const (
	StateCheckVersion UpgradeState = iota
	StateFlash
	StateReady
	StateFailed
)

func (s UpgradeState) String() string {
	switch s {
	case StateCheckVersion:
		return "check_version"
	case StateFlash:
		return "flash"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("UpgradeState(%d)", int(s))
	}
}

// maxVersionChecks bounds the check, flash, check cycle
const maxVersionChecks = 2

// Setup resets the MCU, makes sure it runs the expected firmware (flashing
// it at most once), sends the settings, polls once and marks the device
// ready. A failed upgrade marks the device failed for good.
func (d *Device) Setup(ctx context.Context) error {
	if d.failed {
		return ErrFailed
	}

	log.Info().Msg("initializing dimmer")

	// Cancellation is a shutdown, not a broken device
	abort := func(err error) error {
		if ctx.Err() != nil {
			return err
		}
		return d.fail(err)
	}

	if err := d.resetNormal(ctx); err != nil {
		return abort(fmt.Errorf("reset: %w", err))
	}

	for check := 0; check < maxVersionChecks; check++ {
		d.state = StateCheckVersion

		current, err := d.RequestVersion(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read firmware version")
		}

		if d.opts.image == nil {
			log.Info().Stringer("version", current).Msg("dimmer firmware version, no image to compare")
			break
		}

		want := d.opts.image.Version()
		log.Info().Stringer("current", current).Stringer("desired", want).Msg("dimmer firmware version")
		if err == nil && current == want {
			break
		}

		if check > 0 {
			log.Error().Stringer("current", current).Stringer("desired", want).
				Msg("firmware upgrade already performed, but version is still incorrect")
			return d.fail(fmt.Errorf("%w: version %s after upgrade, want %s", ErrUpgradeFailed, current, want))
		}

		log.Warn().Msg("unsupported dimmer firmware version, flashing")
		d.state = StateFlash
		if err := d.upgrade(ctx, d.opts.image); err != nil {
			return abort(fmt.Errorf("%w: %w", ErrUpgradeFailed, err))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := d.SendSettings(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to send settings")
	}
	if err := d.Poll(ctx); err != nil {
		log.Warn().Err(err).Msg("initial poll failed")
	}

	d.state = StateReady
	d.ready = true
	log.Info().Msg("dimmer ready")
	return nil
}

// upgrade flashes img through the bootloader and restarts the application
func (d *Device) upgrade(ctx context.Context, img *firmware.Image) error {
	if d.opts.flasher == nil {
		return fmt.Errorf("no flasher configured")
	}

	log.Warn().Int("size", img.Size()).Msg("starting firmware upgrade")

	if err := d.resetBootloader(ctx); err != nil {
		return fmt.Errorf("reset into bootloader: %w", err)
	}

	if err := d.opts.flasher.EraseAll(ctx); err != nil {
		return fmt.Errorf("failed to erase flash: %w", err)
	}

	chunks := img.Chunks(firmware.ChunkSize)
	for i, chunk := range chunks {
		if err := d.opts.flasher.WriteChunk(ctx, chunk.Address, chunk.Data); err != nil {
			return fmt.Errorf("failed to write flash at 0x%08X: %w", chunk.Address, err)
		}
		if (i+1)%64 == 0 {
			log.Debug().Int("chunk", i+1).Int("total", len(chunks)).Msg("flashing")
		}
	}

	log.Info().Int("chunks", len(chunks)).Msg("firmware upgrade successful")

	if err := d.resetNormal(ctx); err != nil {
		return fmt.Errorf("reset into application: %w", err)
	}
	return nil
}

func (d *Device) fail(err error) error {
	d.failed = true
	d.ready = false
	d.state = StateFailed
	log.Error().Err(err).Msg("dimmer initialization failed")
	return err
}
