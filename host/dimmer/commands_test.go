package dimmer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"dimctl/protocol"
)

func TestWriteStateRequiresSetup(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t)

	require.ErrorIs(t, dev.WriteState(context.Background(), 0.5), ErrNotReady)
	assert.Empty(t, fake.Frames())
}

func TestWriteStateSkipsUnchanged(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t)
	require.NoError(t, dev.Setup(context.Background()))
	setupFrames := len(fake.Frames())

	require.NoError(t, dev.WriteState(context.Background(), 1.0))
	require.NoError(t, dev.WriteState(context.Background(), 1.0))
	require.NoError(t, dev.WriteState(context.Background(), 0))

	frames := fake.Frames()[setupFrames:]
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.SwitchPayload(1000), frames[0].Payload)
	assert.Equal(t, protocol.SwitchPayload(0), frames[1].Payload)
	assert.Zero(t, dev.Brightness())
}

func TestWriteStateRejectedKeepsBrightness(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t)
	require.NoError(t, dev.Setup(context.Background()))
	fake.SetStatus(protocol.CmdSwitch, 0x02)

	err := dev.WriteState(context.Background(), 0.25)

	require.Error(t, err)
	assert.True(t, protocol.IsDispatchError(err))
	assert.Zero(t, dev.Brightness())
}

func TestSendSettingsSendsTwoFramesWithSameBrightness(t *testing.T) {
	t.Parallel()

	cfg := Config{
		MinBrightness:    100,
		MaxBrightness:    900,
		FadeRate:         250,
		WarmupBrightness: 50,
		WarmupTime:       20,
		LeadingEdge:      true,
	}
	dev, fake, _ := newTestDevice(t,
		WithConfig(cfg),
		WithBrightnessSource(func() float64 { return 0.5 }),
	)

	require.NoError(t, dev.SendSettings(context.Background()))

	frames := fake.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.CmdSettings, frames[0].Command)
	assert.Equal(t, protocol.CmdSwitch, frames[1].Command)

	assert.Equal(t, frames[0].Payload[0:2], frames[1].Payload)
	assert.Equal(t, protocol.SwitchPayload(500), frames[1].Payload)
	assert.Equal(t, byte(protocol.EdgeLeading), frames[0].Payload[2])
	assert.Equal(t, byte(protocol.MaxFadeRate), frames[0].Payload[4])
	assert.Equal(t, uint16(500), dev.Brightness())
}

func TestSendSettingsDefaultsToOff(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t, WithConfig(Config{MinBrightness: 200, MaxBrightness: 1000}))

	require.NoError(t, dev.SendSettings(context.Background()))

	frames := fake.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.SwitchPayload(0), frames[1].Payload)
}

func TestSendSettingsRejectedStillSendsSwitch(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t, WithBrightnessSource(func() float64 { return 1 }))
	fake.SetStatus(protocol.CmdSettings, 0x00)

	err := dev.SendSettings(context.Background())

	var statusErr *protocol.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, protocol.CmdSettings, statusErr.Command)
	assert.Equal(t, []protocol.Command{protocol.CmdSettings, protocol.CmdSwitch}, fake.Commands())
	assert.Equal(t, uint16(1000), dev.Brightness())
}

func TestSendSettingsNoReply(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t)
	fake.SetSilent(true)

	err := dev.SendSettings(context.Background())

	require.ErrorIs(t, err, protocol.ErrNoReply)
	assert.Len(t, fake.Frames(), 2*protocol.DefaultMaxAttempts)
}

func TestPollPublishesReading(t *testing.T) {
	t.Parallel()

	power, voltage, current, brightness := &recorder{}, &recorder{}, &recorder{}, &recorder{}
	dev, fake, clock := newTestDevice(t,
		WithSinks(power, voltage, current),
		WithBrightnessSink(brightness),
	)
	fake.SetReport(pollReport(10000, 1000, 0))

	require.NoError(t, dev.Poll(context.Background()))

	reading, ok := dev.LastReading()
	require.True(t, ok)
	assert.Equal(t, uint8(3), reading.HardwareRevision)
	assert.Equal(t, uint16(500), reading.Brightness)
	assert.Equal(t, uint8(20), reading.FadeRate)
	assert.Equal(t, clock.Now(), reading.At)

	require.Len(t, power.values, 1)
	assert.InDelta(t, 88.0373, power.values[0], 1e-9)
	assert.InDelta(t, 347.8, voltage.values[0], 1e-9)
	assert.Equal(t, []float64{0}, current.values, "zero raw current means no reading")
	assert.Equal(t, []float64{500}, brightness.values)
}

func TestPollWithoutSinks(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t)
	fake.SetReport(pollReport(0, 0, 0))

	require.NoError(t, dev.Poll(context.Background()))
	reading, _ := dev.LastReading()
	assert.Zero(t, reading.Power)
}

func TestPollShortReportIsDispatchFailure(t *testing.T) {
	t.Parallel()

	power := &recorder{}
	dev, fake, _ := newTestDevice(t, WithSinks(power, nil, nil))
	fake.SetReport(make([]byte, protocol.PollReportMinSize-1))

	err := dev.Poll(context.Background())

	require.Error(t, err)
	assert.True(t, protocol.IsDispatchError(err))
	assert.Len(t, fake.Frames(), 1, "a rejected reply still ends the retries")
	assert.Empty(t, power.values)
	_, ok := dev.LastReading()
	assert.False(t, ok)
}

func TestHandleFrameUnknownCommand(t *testing.T) {
	t.Parallel()

	dev, _, _ := newTestDevice(t)
	err := dev.handleFrame(protocol.Frame{Command: 0x42, Payload: []byte{protocol.StatusOK}})
	assert.ErrorIs(t, err, ErrUnexpectedCommand)
}

func TestRequestVersion(t *testing.T) {
	t.Parallel()

	dev, fake, _ := newTestDevice(t)
	fake.SetVersion(protocol.Version{Major: 2, Minor: 9})

	v, err := dev.RequestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.9", v.String())
}

func TestConvertBrightness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    float64
		min, max uint16
		want     uint16
	}{
		{"off", 0, 100, 900, 0},
		{"full default range", 1, 0, 1000, 1000},
		{"half default range", 0.5, 0, 1000, 500},
		{"floor", 0.001, 100, 900, 100},
		{"mid", 0.5, 100, 900, 500},
		{"top of range", 1, 100, 900, 900},
		{"ceiling", 1, 500, 1200, 1000},
		{"above one", 3, 0, 1000, 1000},
		{"negative", -1, 100, 900, 0},
		{"not a number", math.NaN(), 100, 900, 0},
		{"positive infinity", math.Inf(1), 100, 900, 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertBrightness(tt.level, tt.min, tt.max))
		})
	}
}

func TestPropertyConvertBrightness(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.Uint16Range(0, MaxBrightness).Draw(t, "min")
		hi := rapid.Uint16Range(lo, 2000).Draw(t, "max")
		level := rapid.Float64Range(0, 1).Draw(t, "level")

		got := ConvertBrightness(level, lo, hi)
		if got > MaxBrightness {
			t.Fatalf("got %d, above ceiling", got)
		}
		if ConvertBrightness(0, lo, hi) != 0 {
			t.Fatalf("zero level must be off")
		}
		if level > 0 && got < lo {
			t.Fatalf("level %v gave %d, below floor %d", level, got, lo)
		}
	})
}
