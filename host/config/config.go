// Package config loads the dimctl TOML configuration
package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// DefaultPath is used when no -config flag is given
const DefaultPath = "/etc/dimctl/dimctl.toml"

// Line modes
const (
	LinesNone  = "none"
	LinesSysfs = "sysfs"
	LinesModem = "modem"
)

// Config is the top level configuration
type Config struct {
	Serial   Serial   `toml:"serial"`
	Lines    Lines    `toml:"lines"`
	Dimmer   Dimmer   `toml:"dimmer"`
	Firmware Firmware `toml:"firmware"`
	HTTP     HTTP     `toml:"http"`
	MQTT     MQTT     `toml:"mqtt"`
	Log      Log      `toml:"log"`
}

// Serial is the link to the dimmer MCU
type Serial struct {
	Device        string `toml:"device" validate:"required"`
	Baud          int    `toml:"baud" validate:"gt=0"`
	Driver        string `toml:"driver" validate:"oneof=tarm bugst"`
	ReadTimeoutMs int    `toml:"read_timeout_ms" validate:"gte=0"`
}

// Lines selects how NRST and BOOT0 are driven. In modem mode NRST is DTR
// and BOOT0 is RTS of a bugst serial port.
type Lines struct {
	Mode      string `toml:"mode" validate:"oneof=none sysfs modem"`
	ResetGPIO int    `toml:"reset_gpio" validate:"gte=0"`
	Boot0GPIO int    `toml:"boot0_gpio" validate:"gte=0"`
	SysfsRoot string `toml:"sysfs_root"`
	Invert    bool   `toml:"invert"`
}

// Dimmer holds the light settings
type Dimmer struct {
	MinBrightness    uint16 `toml:"min_brightness" validate:"lte=1000"`
	MaxBrightness    uint16 `toml:"max_brightness" validate:"gtefield=MinBrightness"`
	FadeRate         uint16 `toml:"fade_rate"`
	LeadingEdge      bool   `toml:"leading_edge"`
	WarmupBrightness uint16 `toml:"warmup_brightness"`
	WarmupTime       uint16 `toml:"warmup_time"`
	PollIntervalMs   int    `toml:"poll_interval_ms" validate:"gte=0"`
}

// PollInterval returns the telemetry poll period
func (d Dimmer) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

// Firmware is the image the MCU must run; an empty path disables upgrades
type Firmware struct {
	Path  string `toml:"path"`
	Major uint8  `toml:"major"`
	Minor uint8  `toml:"minor"`
}

// HTTP configures the API server; an empty listen address disables it
type HTTP struct {
	Listen string `toml:"listen"`
}

// MQTT configures the telemetry bridge; an empty broker disables it
type MQTT struct {
	Broker      string `toml:"broker"`
	TopicPrefix string `toml:"topic_prefix"`
}

// Log configures logging
type Log struct {
	File       string `toml:"file"`
	Level      string `toml:"level" validate:"oneof=trace debug info warn error"`
	MaxSizeMB  int    `toml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `toml:"max_backups" validate:"gte=0"`
}

// Default returns the configuration used for missing values
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and validates the configuration file at path
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Lines.Mode == LinesSysfs && c.Lines.ResetGPIO == c.Lines.Boot0GPIO {
		return fmt.Errorf("invalid config: reset_gpio and boot0_gpio must differ")
	}
	if c.Lines.Mode == LinesModem && c.Serial.Driver != "bugst" {
		return fmt.Errorf("invalid config: lines mode %q requires the bugst serial driver", LinesModem)
	}
	return nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(cfg *Config) {
	// Serial link
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyS1"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Serial.Driver == "" {
		cfg.Serial.Driver = "tarm"
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = 50
	}

	if cfg.Lines.Mode == "" {
		cfg.Lines.Mode = LinesNone
	}

	// Full range unless narrowed
	if cfg.Dimmer.MaxBrightness == 0 {
		cfg.Dimmer.MaxBrightness = 1000
	}
	if cfg.Dimmer.PollIntervalMs == 0 {
		cfg.Dimmer.PollIntervalMs = 10000
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 1
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 2
	}
}
