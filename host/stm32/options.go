package stm32

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Config holds the bootloader client configuration
type Config struct {
	// AckTimeout bounds the wait for every ACK except mass erase
	AckTimeout time.Duration

	// EraseTimeout bounds the wait for the mass erase ACK
	EraseTimeout time.Duration

	// PollInterval is the pause after a read returned no bytes
	PollInterval time.Duration

	Clock clockwork.Clock
}

func defaultConfig() Config {
	return Config{
		AckTimeout:   time.Second,
		EraseTimeout: 30 * time.Second,
		PollInterval: time.Millisecond,
		Clock:        clockwork.NewRealClock(),
	}
}

// Option is a functional option for configuring the Client
type Option func(*Config)

// WithAckTimeout sets the default ACK timeout
func WithAckTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.AckTimeout = timeout
		}
	}
}

// WithEraseTimeout sets the mass erase timeout
func WithEraseTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.EraseTimeout = timeout
		}
	}
}

// WithPollInterval sets the pause between empty reads; zero disables it
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval >= 0 {
			c.PollInterval = interval
		}
	}
}

// WithClock replaces the wall clock
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}
