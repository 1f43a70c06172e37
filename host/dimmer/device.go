// Package dimmer is the host side protocol engine of the dimmer MCU: device
// state, reply dispatch, brightness mapping, the firmware version gate and
// the reset sequences that select between application and bootloader.
//
// A Device is driven synchronously and is not safe for concurrent use;
// callers that poll and write from different goroutines must serialize.
package dimmer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"dimctl/host/firmware"
	"dimctl/host/gpio"
	"dimctl/host/serial"
	"dimctl/protocol"
)

// Reset timing
const (
	DefaultResetDelay = 50 * time.Millisecond
	DefaultBootDelay  = 50 * time.Millisecond
)

// Config holds the light settings sent to the MCU
type Config struct {
	MinBrightness    uint16
	MaxBrightness    uint16
	FadeRate         uint16
	WarmupBrightness uint16
	WarmupTime       uint16
	LeadingEdge      bool
}

// DefaultConfig returns the full 0-1000 range, trailing edge and no fade
func DefaultConfig() Config {
	return Config{
		MinBrightness: 0,
		MaxBrightness: MaxBrightness,
	}
}

// Sink receives one decoded telemetry quantity
type Sink interface {
	Publish(value float64)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(value float64)

func (f SinkFunc) Publish(value float64) { f(value) }

// BrightnessSource returns the light's current normalized level (0.0-1.0)
type BrightnessSource func() float64

// Flasher erases and programs the MCU flash while it runs its bootloader
type Flasher interface {
	EraseAll(ctx context.Context) error
	WriteChunk(ctx context.Context, addr uint32, data []byte) error
}

// Reading is the last decoded poll report
type Reading struct {
	HardwareRevision uint8     `json:"hardware_revision"`
	Brightness       uint16    `json:"brightness"`
	FadeRate         uint8     `json:"fade_rate"`
	Power            float64   `json:"power"`
	Voltage          float64   `json:"voltage"`
	Current          float64   `json:"current"`
	At               time.Time `json:"at"`
}

type options struct {
	config     Config
	image      *firmware.Image
	flasher    Flasher
	reset      gpio.Line
	boot0      gpio.Line
	power      Sink
	voltage    Sink
	current    Sink
	brightness Sink
	source     BrightnessSource
	clock      clockwork.Clock
	resetDelay time.Duration
	bootDelay  time.Duration
	transport  []protocol.HostOption
}

// Option configures a Device
type Option func(*options)

// WithConfig sets the light settings
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithFirmware enables the version gate against img, flashed through f
func WithFirmware(img *firmware.Image, f Flasher) Option {
	return func(o *options) {
		o.image = img
		o.flasher = f
	}
}

// WithLines sets the reset (NRST) and bootloader select (BOOT0) lines
func WithLines(reset, boot0 gpio.Line) Option {
	return func(o *options) {
		if reset != nil {
			o.reset = reset
		}
		if boot0 != nil {
			o.boot0 = boot0
		}
	}
}

// WithSinks sets where decoded power, voltage and current are published.
// Nil sinks are skipped.
func WithSinks(power, voltage, current Sink) Option {
	return func(o *options) {
		o.power = power
		o.voltage = voltage
		o.current = current
	}
}

// WithBrightnessSink publishes the brightness reported by the MCU
func WithBrightnessSink(s Sink) Option {
	return func(o *options) { o.brightness = s }
}

// WithBrightnessSource sets where SendSettings takes the level from
func WithBrightnessSource(src BrightnessSource) Option {
	return func(o *options) { o.source = src }
}

// WithClock replaces the wall clock for reset delays and the transceiver
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithResetDelays overrides how long reset is held and how long boot takes
func WithResetDelays(reset, boot time.Duration) Option {
	return func(o *options) {
		o.resetDelay = max(reset, 0)
		o.bootDelay = max(boot, 0)
	}
}

// WithTransportOptions passes options to the command transceiver
func WithTransportOptions(opts ...protocol.HostOption) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// Device is the protocol engine for one dimmer MCU
type Device struct {
	port      serial.Port
	transport *protocol.HostTransport
	opts      options

	// Last brightness acknowledged by the MCU
	brightness uint16

	version     protocol.Version
	haveVersion bool

	reading     Reading
	haveReading bool

	state  UpgradeState
	ready  bool
	failed bool
}

// New creates a device engine over port. Nothing is sent until Setup.
func New(port serial.Port, opts ...Option) *Device {
	o := options{
		config:     DefaultConfig(),
		reset:      gpio.NopLine{},
		boot0:      gpio.NopLine{},
		clock:      clockwork.NewRealClock(),
		resetDelay: DefaultResetDelay,
		bootDelay:  DefaultBootDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{
		port:  port,
		opts:  o,
		state: StateCheckVersion,
	}

	transportOpts := append([]protocol.HostOption{protocol.WithClock(o.clock)}, o.transport...)
	d.transport = protocol.NewHostTransport(port, d.handleFrame, transportOpts...)
	return d
}

// Ready reports whether Setup completed
func (d *Device) Ready() bool {
	return d.ready
}

// Failed reports whether initialization failed permanently
func (d *Device) Failed() bool {
	return d.failed
}

// State returns the upgrade state machine position
func (d *Device) State() UpgradeState {
	return d.state
}

// Version returns the last firmware version reported by the MCU
func (d *Device) Version() (protocol.Version, bool) {
	return d.version, d.haveVersion
}

// Brightness returns the last brightness value acknowledged by the MCU
func (d *Device) Brightness() uint16 {
	return d.brightness
}

// LastReading returns the most recent poll report
func (d *Device) LastReading() (Reading, bool) {
	return d.reading, d.haveReading
}

// Config returns the light settings
func (d *Device) Config() Config {
	return d.opts.config
}

// ExpectedVersion returns the version of the bundled image, if any
func (d *Device) ExpectedVersion() (protocol.Version, bool) {
	if d.opts.image == nil {
		return protocol.Version{}, false
	}
	return d.opts.image.Version(), true
}
