package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSwitchExample(t *testing.T) {
	t.Parallel()

	frame, err := Encode(5, CmdSwitch, []byte{0xE8, 0x03})
	require.NoError(t, err)

	assert.Equal(t, []byte{0x01, 0x05, 0x01, 0x02, 0xE8, 0x03, 0x00, 0xF3, 0x04}, frame)
}

func TestEncodeEmptyPayload(t *testing.T) {
	t.Parallel()

	frame, err := Encode(1, CmdVersion, nil)
	require.NoError(t, err)

	// 0x01 + 0x11 + 0x00 = 0x0012
	assert.Equal(t, []byte{0x01, 0x01, 0x11, 0x00, 0x00, 0x12, 0x04}, frame)
}

func TestEncodeMaxPayload(t *testing.T) {
	t.Parallel()

	frame, err := Encode(9, CmdPoll, make([]byte, MaxPayloadSize))
	require.NoError(t, err)
	assert.Len(t, frame, MaxFrameSize)
}

func TestEncodeReturnsOwnedSlice(t *testing.T) {
	t.Parallel()

	first, err := Encode(1, CmdSwitch, SwitchPayload(1000))
	require.NoError(t, err)
	want := append([]byte(nil), first...)

	_, err = Encode(2, CmdPoll, nil)
	require.NoError(t, err)
	assert.Equal(t, want, first)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	_, err := Encode(1, CmdPoll, make([]byte, MaxPayloadSize+1))

	var tooLarge *PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, MaxPayloadSize+1, tooLarge.Length)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	frame, err := Decode([]byte{0x01, 0x05, 0x01, 0x02, 0xE8, 0x03, 0x00, 0xF3, 0x04})
	require.NoError(t, err)

	assert.Equal(t, uint8(5), frame.Sequence)
	assert.Equal(t, CmdSwitch, frame.Command)
	assert.Equal(t, []byte{0xE8, 0x03}, frame.Payload)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	valid := []byte{0x01, 0x05, 0x01, 0x02, 0xE8, 0x03, 0x00, 0xF3, 0x04}
	mutate := func(i int, b byte) []byte {
		out := append([]byte(nil), valid...)
		out[i] = b
		return out
	}

	testCases := []struct {
		name     string
		frame    []byte
		checksum bool
	}{
		{name: "too short", frame: valid[:5]},
		{name: "bad start", frame: mutate(0, 0x02)},
		{name: "bad end", frame: mutate(8, 0x03)},
		{name: "length mismatch", frame: mutate(3, 0x01)},
		{name: "oversized length", frame: mutate(3, 0xFF)},
		{name: "payload corrupted", frame: mutate(4, 0xE9), checksum: true},
		{name: "checksum corrupted", frame: mutate(7, 0xF4), checksum: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tc.frame)
			require.Error(t, err)

			if tc.checksum {
				var csErr *ChecksumError
				assert.ErrorAs(t, err, &csErr)
			} else {
				var frErr *FramingError
				assert.ErrorAs(t, err, &frErr)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "switch", CmdSwitch.String())
	assert.Equal(t, "poll", CmdPoll.String())
	assert.Equal(t, "version", CmdVersion.String())
	assert.Equal(t, "settings", CmdSettings.String())
	assert.Equal(t, "cmd(0x7f)", Command(0x7F).String())
}
