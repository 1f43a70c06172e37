package protocol

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPort records writes and serves replies produced by respond. Empty
// reads advance the fake clock so timeouts elapse without sleeping.
type scriptedPort struct {
	clock   *clockwork.FakeClock
	respond func(written []byte) []byte
	writes  [][]byte
	rx      []byte
	readErr error
	flushes int
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	if p.respond != nil {
		p.rx = append(p.rx, p.respond(b)...)
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.rx) == 0 {
		p.clock.Advance(time.Millisecond)
		return 0, io.EOF
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *scriptedPort) Flush() error {
	p.flushes++
	return nil
}

func newTestTransport(port *scriptedPort, handler FrameHandler, opts ...HostOption) *HostTransport {
	opts = append([]HostOption{WithClock(port.clock), WithPollInterval(0)}, opts...)
	return NewHostTransport(port, handler, opts...)
}

func reply(t *testing.T, seq uint8, cmd Command, payload []byte) []byte {
	t.Helper()
	frame, err := Encode(seq, cmd, payload)
	require.NoError(t, err)
	return frame
}

func TestSendCommandNoReplyTransmitsThreeTimes(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	start := port.clock.Now()
	handled := 0
	tr := newTestTransport(port, func(Frame) error { handled++; return nil })

	err := tr.SendCommand(context.Background(), CmdPoll, nil)

	require.ErrorIs(t, err, ErrNoReply)
	require.Len(t, port.writes, DefaultMaxAttempts)
	for _, w := range port.writes {
		assert.Equal(t, port.writes[0], w, "resends must reuse the identical frame")
	}
	assert.Equal(t, DefaultMaxAttempts, port.flushes)
	assert.Zero(t, handled)
	assert.GreaterOrEqual(t, port.clock.Since(start), DefaultMaxAttempts*DefaultAckTimeout)
}

func TestSendCommandPreIncrementsSequence(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		return reply(t, w[PositionSeq], Command(w[PositionCmd]), []byte{StatusOK})
	}
	tr := newTestTransport(port, nil)

	require.NoError(t, tr.SendCommand(context.Background(), CmdSwitch, SwitchPayload(10)))
	require.NoError(t, tr.SendCommand(context.Background(), CmdSwitch, SwitchPayload(20)))

	assert.Equal(t, byte(1), port.writes[0][PositionSeq])
	assert.Equal(t, byte(2), port.writes[1][PositionSeq])
	assert.Equal(t, uint8(2), tr.Sequence())
}

func TestSendCommandSequenceWraps(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		return reply(t, w[PositionSeq], CmdVersion, []byte{1, 2})
	}
	tr := newTestTransport(port, nil)
	tr.seq = 0xFF

	require.NoError(t, tr.SendCommand(context.Background(), CmdVersion, nil))
	assert.Equal(t, byte(0x00), port.writes[0][PositionSeq])
}

func TestSendCommandDispatchesCorrelatedReply(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		return reply(t, w[PositionSeq], CmdVersion, []byte{0x07, 0x33})
	}

	var got Frame
	tr := newTestTransport(port, func(f Frame) error { got = f; return nil })

	require.NoError(t, tr.SendCommand(context.Background(), CmdVersion, nil))
	assert.Len(t, port.writes, 1)
	assert.Equal(t, CmdVersion, got.Command)
	assert.Equal(t, []byte{0x07, 0x33}, got.Payload)
}

func TestSendCommandSkipsStaleSequenceWithinWindow(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		seq := w[PositionSeq]
		stale := reply(t, seq-1, CmdPoll, make([]byte, PollReportMinSize))
		good := reply(t, seq, CmdSwitch, []byte{StatusOK})
		return append(stale, good...)
	}

	var handled []Frame
	tr := newTestTransport(port, func(f Frame) error { handled = append(handled, f); return nil })

	require.NoError(t, tr.SendCommand(context.Background(), CmdSwitch, SwitchPayload(1)))
	assert.Len(t, port.writes, 1, "a stale reply must not cost a retry")
	require.Len(t, handled, 1)
	assert.Equal(t, CmdSwitch, handled[0].Command)
}

func TestSendCommandIgnoresGarbageBeforeReply(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		good := reply(t, w[PositionSeq], CmdSwitch, []byte{StatusOK})
		return append([]byte{0xFF, 0x01, 0x02, 0x00, 0x00, 0x00, 0x13}, good...)
	}
	tr := newTestTransport(port, nil)

	require.NoError(t, tr.SendCommand(context.Background(), CmdSwitch, SwitchPayload(1)))
	assert.Len(t, port.writes, 1)
}

func TestSendCommandRetriesAfterTimeout(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		if len(port.writes) < 2 {
			return nil
		}
		return reply(t, w[PositionSeq], CmdSwitch, []byte{StatusOK})
	}

	var attempts int
	tr := newTestTransport(port, nil, WithResultHook(func(_ Command, n int, _ error) { attempts = n }))

	require.NoError(t, tr.SendCommand(context.Background(), CmdSwitch, SwitchPayload(1)))
	assert.Len(t, port.writes, 2)
	assert.Equal(t, 2, attempts)
}

func TestSendCommandDispatchFailureEndsRetries(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		return reply(t, w[PositionSeq], CmdSwitch, []byte{0x00})
	}
	tr := newTestTransport(port, func(f Frame) error {
		return ParseStatus(f.Command, f.Payload)
	})

	err := tr.SendCommand(context.Background(), CmdSwitch, SwitchPayload(1))

	require.Error(t, err)
	assert.True(t, IsDispatchError(err))
	assert.NotErrorIs(t, err, ErrNoReply)
	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Len(t, port.writes, 1)
}

func TestSendCommandKeepsBytesAfterReply(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	port.respond = func(w []byte) []byte {
		seq := w[PositionSeq]
		if seq != 1 {
			return nil
		}
		// The reply to the next command arrives glued to this one
		first := reply(t, 1, CmdSwitch, []byte{StatusOK})
		second := reply(t, 2, CmdPoll, make([]byte, PollReportMinSize))
		return append(first, second...)
	}

	var handled []Command
	tr := newTestTransport(port, func(f Frame) error { handled = append(handled, f.Command); return nil })

	require.NoError(t, tr.SendCommand(context.Background(), CmdSwitch, SwitchPayload(1)))
	require.NoError(t, tr.SendCommand(context.Background(), CmdPoll, nil))
	assert.Equal(t, []Command{CmdSwitch, CmdPoll}, handled)
	assert.Len(t, port.writes, 2)
}

func TestSendCommandReadError(t *testing.T) {
	t.Parallel()

	readErr := errors.New("device unplugged")
	port := &scriptedPort{clock: clockwork.NewFakeClock(), readErr: readErr}
	tr := newTestTransport(port, nil)

	err := tr.SendCommand(context.Background(), CmdPoll, nil)
	require.ErrorIs(t, err, readErr)
	assert.Len(t, port.writes, 1)
}

func TestSendCommandContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	tr := newTestTransport(port, nil)

	err := tr.SendCommand(ctx, CmdPoll, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSendCommandRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	tr := newTestTransport(port, nil)

	err := tr.SendCommand(context.Background(), CmdSettings, make([]byte, MaxPayloadSize+1))

	var tooLarge *PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Empty(t, port.writes)
}

func TestHostOptions(t *testing.T) {
	t.Parallel()

	port := &scriptedPort{clock: clockwork.NewFakeClock()}
	tr := newTestTransport(port, nil, WithMaxAttempts(5), WithAckTimeout(50*time.Millisecond))

	err := tr.SendCommand(context.Background(), CmdPoll, nil)
	require.ErrorIs(t, err, ErrNoReply)
	assert.Len(t, port.writes, 5)

	// Invalid values keep the defaults
	tr = NewHostTransport(port, nil, WithMaxAttempts(0), WithAckTimeout(-1))
	assert.Equal(t, DefaultMaxAttempts, tr.cfg.maxAttempts)
	assert.Equal(t, DefaultAckTimeout, tr.cfg.ackTimeout)
}
