// Package service runs a dimmer engine for the lifetime of the process:
// initialization, the periodic telemetry poll and serialized access for
// concurrent callers such as the HTTP API and the MQTT bridge.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"dimctl/host/dimmer"
)

// DefaultPollInterval matches the MCU's telemetry refresh
const DefaultPollInterval = 10 * time.Second

// ErrInvalidLevel is returned for levels outside 0.0-1.0, NaN included
var ErrInvalidLevel = errors.New("brightness level must be within 0-1")

// Level is the light's requested normalized brightness. It feeds the
// engine's settings update and is safe for concurrent use.
type Level struct {
	mu    sync.Mutex
	value float64
}

// Get returns the level
func (l *Level) Get() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Set stores the level
func (l *Level) Set(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
}

// Option configures a Service
type Option func(*Service)

// WithPollInterval sets the telemetry poll period
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the wall clock driving the poll ticker
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Service owns one Device and serializes every operation on it
type Service struct {
	mu    sync.Mutex
	dev   *dimmer.Device
	level *Level

	clock    clockwork.Clock
	interval time.Duration
}

// New creates a service for dev. level may be nil.
func New(dev *dimmer.Device, level *Level, opts ...Option) *Service {
	if level == nil {
		level = &Level{}
	}
	s := &Service{
		dev:      dev,
		level:    level,
		clock:    clockwork.NewRealClock(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup initializes the device
func (s *Service) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Setup(ctx)
}

// Run initializes the device and polls it until ctx is cancelled. An
// initialization failure is returned; poll failures are logged and retried
// on the next tick.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Setup(ctx); err != nil {
		return err
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("polling dimmer")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("dimmer poll failed")
			}
		}
	}
}

// Poll requests a telemetry report
func (s *Service) Poll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Poll(ctx)
}

// SetBrightness records the requested level and sends it to the device
func (s *Service) SetBrightness(ctx context.Context, level float64) error {
	if !(level >= 0 && level <= 1) {
		return ErrInvalidLevel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.level.Set(level)
	return s.dev.WriteState(ctx, level)
}

// Status is a snapshot of the device state
type Status struct {
	Ready           bool            `json:"ready"`
	Failed          bool            `json:"failed"`
	UpgradeState    string          `json:"upgrade_state"`
	FirmwareVersion string          `json:"firmware_version,omitempty"`
	ExpectedVersion string          `json:"expected_version,omitempty"`
	Brightness      uint16          `json:"brightness"`
	Level           float64         `json:"level"`
	Reading         *dimmer.Reading `json:"reading,omitempty"`
}

// Status returns a snapshot of the device state
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Ready:        s.dev.Ready(),
		Failed:       s.dev.Failed(),
		UpgradeState: s.dev.State().String(),
		Brightness:   s.dev.Brightness(),
		Level:        s.level.Get(),
	}
	if v, ok := s.dev.Version(); ok {
		st.FirmwareVersion = v.String()
	}
	if v, ok := s.dev.ExpectedVersion(); ok {
		st.ExpectedVersion = v.String()
	}
	if r, ok := s.dev.LastReading(); ok {
		st.Reading = &r
	}
	return st
}
