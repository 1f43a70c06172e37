package dimmer

// MaxBrightness is the absolute ceiling of the MCU's brightness scale
const MaxBrightness = 1000

// ConvertBrightness maps a normalized level onto [min, max]. Zero always
// means off; any other level lands at or above min. The result never
// exceeds MaxBrightness. Levels outside 0.0-1.0 are clamped first and NaN
// means off.
func ConvertBrightness(level float64, minBrightness, maxBrightness uint16) uint16 {
	if !(level > 0) {
		return 0
	}
	level = min(level, 1)

	span := max(int(maxBrightness)-int(minBrightness), 0)
	value := int(level*float64(span)) + int(minBrightness)
	return uint16(min(value, MaxBrightness))
}

// ConvertBrightness maps level with the device's configured bounds
func (d *Device) ConvertBrightness(level float64) uint16 {
	return ConvertBrightness(level, d.opts.config.MinBrightness, d.opts.config.MaxBrightness)
}
