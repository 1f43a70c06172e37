package protocol

import "fmt"

// Encode builds a complete frame for the given sequence, command and payload.
//
// Frame structure:
//
//	[START][SEQ][CMD][LEN][PAYLOAD...][CSUM_H][CSUM_L][END]
//
// The checksum covers SEQ through the last payload byte and is written high
// byte first.
func Encode(seq uint8, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, &PayloadTooLargeError{Length: len(payload)}
	}

	var buf FrameBuffer
	if _, err := buf.Write([]byte{StartByte, seq, byte(cmd), byte(len(payload))}); err != nil {
		return nil, err
	}
	if _, err := buf.Write(payload); err != nil {
		return nil, err
	}

	csum := Checksum(buf.Bytes()[PositionSeq:])
	if _, err := buf.Write([]byte{byte(csum >> 8), byte(csum), EndByte}); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

// Decode validates a complete frame and returns its contents. The returned
// payload is a copy and does not alias frame.
func Decode(frame []byte) (Frame, error) {
	if len(frame) < HeaderSize+TrailerSize {
		return Frame{}, &FramingError{Reason: fmt.Sprintf("frame too short (%d bytes)", len(frame)), Position: len(frame)}
	}
	if frame[0] != StartByte {
		return Frame{}, &FramingError{Reason: "bad start marker", Position: 0, Byte: frame[0]}
	}

	payloadLen := int(frame[PositionLen])
	required := HeaderSize + payloadLen + TrailerSize
	if required > MaxFrameSize {
		return Frame{}, &FramingError{Reason: "declared length exceeds frame capacity", Position: PositionLen, Byte: frame[PositionLen]}
	}
	if len(frame) != required {
		return Frame{}, &FramingError{
			Reason:   fmt.Sprintf("frame length %d does not match declared payload length %d", len(frame), payloadLen),
			Position: PositionLen,
			Byte:     frame[PositionLen],
		}
	}

	end := HeaderSize + payloadLen
	expected := Checksum(frame[PositionSeq:end])
	actual := uint16(frame[end])<<8 | uint16(frame[end+1])
	if expected != actual {
		return Frame{}, &ChecksumError{Expected: expected, Actual: actual}
	}

	if frame[required-1] != EndByte {
		return Frame{}, &FramingError{Reason: "bad end marker", Position: required - 1, Byte: frame[required-1]}
	}

	payload := make([]byte, payloadLen)
	copy(payload, frame[HeaderSize:end])

	return Frame{
		Sequence: frame[PositionSeq],
		Command:  Command(frame[PositionCmd]),
		Payload:  payload,
	}, nil
}
