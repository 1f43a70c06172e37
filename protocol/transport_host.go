package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Transceiver defaults
const (
	DefaultAckTimeout   = 200 * time.Millisecond
	DefaultMaxAttempts  = 3
	DefaultPollInterval = time.Millisecond
)

// Port is the byte stream the transceiver talks over. Read may return
// (0, nil) or (0, io.EOF) when no bytes are available.
type Port interface {
	io.ReadWriter

	// Flush waits until written data has been handed to the wire
	Flush() error
}

// FrameHandler interprets a reply already matched to the outstanding
// sequence number. A non-nil error means the reply was semantically invalid.
type FrameHandler func(frame Frame) error

// ResultHook observes the outcome of every command
type ResultHook func(cmd Command, attempts int, err error)

type hostConfig struct {
	ackTimeout   time.Duration
	maxAttempts  int
	pollInterval time.Duration
	clock        clockwork.Clock
	resultHook   ResultHook
}

// HostOption configures a HostTransport
type HostOption func(*hostConfig)

// WithAckTimeout sets how long each attempt waits for a correlated reply
func WithAckTimeout(timeout time.Duration) HostOption {
	return func(c *hostConfig) {
		if timeout > 0 {
			c.ackTimeout = timeout
		}
	}
}

// WithMaxAttempts sets the number of transmissions per command
func WithMaxAttempts(attempts int) HostOption {
	return func(c *hostConfig) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithPollInterval sets the pause after a read returned no bytes.
// Zero disables the pause and relies on the port's own read timeout.
func WithPollInterval(interval time.Duration) HostOption {
	return func(c *hostConfig) {
		if interval >= 0 {
			c.pollInterval = interval
		}
	}
}

// WithClock replaces the wall clock, mostly for tests
func WithClock(clock clockwork.Clock) HostOption {
	return func(c *hostConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithResultHook registers a callback run after every command
func WithResultHook(hook ResultHook) HostOption {
	return func(c *hostConfig) {
		c.resultHook = hook
	}
}

// HostTransport sends commands to the device and waits for the matching
// reply. It is driven synchronously by its caller and is not safe for
// concurrent use: exactly one command may be outstanding.
type HostTransport struct {
	port    Port
	parser  *Parser
	handler FrameHandler
	cfg     hostConfig

	// Sequence of the last command sent
	seq uint8

	rx      [64]byte
	pending []byte
}

// NewHostTransport creates a transceiver over port. Correlated replies are
// passed to handler.
func NewHostTransport(port Port, handler FrameHandler, opts ...HostOption) *HostTransport {
	cfg := hostConfig{
		ackTimeout:   DefaultAckTimeout,
		maxAttempts:  DefaultMaxAttempts,
		pollInterval: DefaultPollInterval,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &HostTransport{
		port:    port,
		parser:  NewParser(),
		handler: handler,
		cfg:     cfg,
	}
}

// SendCommand transmits a command and waits for the reply with the same
// sequence number, resending the identical frame after each timeout.
//
// It returns nil when the reply was received and handled, a *DispatchError
// when the reply was received but rejected by the handler, and an error
// wrapping ErrNoReply once all attempts timed out.
func (t *HostTransport) SendCommand(ctx context.Context, cmd Command, payload []byte) error {
	// The sequence advances before every new command, never on a resend
	t.seq++
	seq := t.seq

	frame, err := Encode(seq, cmd, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s command: %w", cmd, err)
	}

	log.Debug().Stringer("cmd", cmd).Uint8("seq", seq).Int("len", len(payload)).Msg("sending command")

	attempts := 0
	for attempts < t.cfg.maxAttempts {
		attempts++

		if err := t.writeFrame(frame); err != nil {
			return t.finish(cmd, attempts, fmt.Errorf("failed to write %s command: %w", cmd, err))
		}

		replied, err := t.awaitReply(ctx, seq)
		if replied || err != nil {
			return t.finish(cmd, attempts, err)
		}

		log.Warn().Stringer("cmd", cmd).Uint8("seq", seq).Int("attempt", attempts).
			Msg("timeout while waiting for reply")
	}

	return t.finish(cmd, attempts, fmt.Errorf("%w: %s after %d attempts", ErrNoReply, cmd, attempts))
}

// Sequence returns the sequence number of the last command sent
func (t *HostTransport) Sequence() uint8 {
	return t.seq
}

// Discard drops any buffered input and partial frame
func (t *HostTransport) Discard() {
	t.pending = nil
	t.parser.Reset()
}

func (t *HostTransport) finish(cmd Command, attempts int, err error) error {
	if t.cfg.resultHook != nil {
		t.cfg.resultHook(cmd, attempts, err)
	}
	return err
}

// writeFrame sends the whole frame to the port
func (t *HostTransport) writeFrame(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}
	return t.port.Flush()
}

// awaitReply polls the port for one attempt's timeout window. It reports
// replied=true once a frame with the expected sequence was dispatched; err
// then carries the dispatch outcome. Frames with another sequence and
// malformed frames are dropped without ending the window.
func (t *HostTransport) awaitReply(ctx context.Context, seq uint8) (replied bool, err error) {
	start := t.cfg.clock.Now()

	for t.cfg.clock.Since(start) < t.cfg.ackTimeout {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		data, err := t.read()
		if err != nil {
			return false, fmt.Errorf("failed to read reply: %w", err)
		}
		if len(data) == 0 {
			if t.cfg.pollInterval > 0 {
				t.cfg.clock.Sleep(t.cfg.pollInterval)
			}
			continue
		}

		for i, b := range data {
			status, perr := t.parser.Feed(b)
			switch status {
			case ParseError:
				log.Debug().Err(perr).Msg("discarding malformed frame")
			case ParseComplete:
				frame := t.parser.Frame()
				if frame.Sequence != seq {
					log.Warn().Uint8("expected", seq).Uint8("got", frame.Sequence).
						Stringer("cmd", frame.Command).Msg("discarding reply with unexpected sequence")
					continue
				}
				// Keep whatever followed the reply for the next command
				t.pending = append(t.pending[:0], data[i+1:]...)
				return true, t.dispatch(frame)
			}
		}
	}

	return false, nil
}

// read returns leftover bytes from a previous wait, or whatever the port has
func (t *HostTransport) read() ([]byte, error) {
	if len(t.pending) > 0 {
		data := make([]byte, len(t.pending))
		copy(data, t.pending)
		t.pending = t.pending[:0]
		return data, nil
	}

	n, err := t.port.Read(t.rx[:])
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return t.rx[:n], nil
}

func (t *HostTransport) dispatch(frame Frame) error {
	log.Debug().Stringer("cmd", frame.Command).Uint8("seq", frame.Sequence).
		Int("len", len(frame.Payload)).Msg("got frame")

	if t.handler == nil {
		return nil
	}
	if err := t.handler(frame); err != nil {
		return &DispatchError{Command: frame.Command, Err: err}
	}
	return nil
}
