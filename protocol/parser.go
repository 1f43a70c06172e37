package protocol

// State is the position of the Parser within a frame.
type State uint8

// Parser states
const (
	StateAwaitStart State = iota
	StateHeader
	StatePayload
	StateChecksumHigh
	StateChecksumLow
	StateAwaitEnd
)

func (s State) String() string {
	switch s {
	case StateAwaitStart:
		return "await-start"
	case StateHeader:
		return "header"
	case StatePayload:
		return "payload"
	case StateChecksumHigh:
		return "checksum-high"
	case StateChecksumLow:
		return "checksum-low"
	case StateAwaitEnd:
		return "await-end"
	default:
		return "unknown"
	}
}

// Status is the classification of one fed byte.
type Status uint8

const (
	// ParseContinue means the byte was accepted and more are needed
	ParseContinue Status = iota
	// ParseComplete means a full, valid frame is available from Frame()
	ParseComplete
	// ParseError means the frame under construction was discarded
	ParseError
)

func (s Status) String() string {
	switch s {
	case ParseContinue:
		return "continue"
	case ParseComplete:
		return "complete"
	case ParseError:
		return "error"
	default:
		return "unknown"
	}
}

// Parser reassembles frames from a byte stream one byte at a time.
//
// After Complete or Error the parser is back at StateAwaitStart, so the next
// byte is always a candidate start marker. There is no other resync logic.
type Parser struct {
	buf        FrameBuffer
	state      State
	payloadLen int
	last       Frame
}

// NewParser creates a parser waiting for a start marker
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one byte. The returned error is non-nil exactly when the
// status is ParseError and is a *FramingError or *ChecksumError.
func (p *Parser) Feed(b byte) (Status, error) {
	switch p.state {
	case StateAwaitStart:
		if b != StartByte {
			return p.fail(&FramingError{Reason: "bad start marker", Position: 0, Byte: b})
		}
		p.push(b)
		p.state = StateHeader

	case StateHeader:
		p.push(b)
		if p.buf.Len() < HeaderSize {
			return ParseContinue, nil
		}
		// Length byte just arrived
		p.payloadLen = int(b)
		if HeaderSize+p.payloadLen+TrailerSize > p.buf.Cap() {
			return p.fail(&FramingError{Reason: "declared length exceeds frame capacity", Position: PositionLen, Byte: b})
		}
		if p.payloadLen == 0 {
			p.state = StateChecksumHigh
		} else {
			p.state = StatePayload
		}

	case StatePayload:
		p.push(b)
		if p.buf.Len() == HeaderSize+p.payloadLen {
			p.state = StateChecksumHigh
		}

	case StateChecksumHigh:
		p.push(b)
		p.state = StateChecksumLow

	case StateChecksumLow:
		end := HeaderSize + p.payloadLen
		actual := uint16(p.buf.At(end))<<8 | uint16(b)
		expected := Checksum(p.buf.Bytes()[PositionSeq:end])
		if actual != expected {
			return p.fail(&ChecksumError{Expected: expected, Actual: actual})
		}
		p.push(b)
		p.state = StateAwaitEnd

	case StateAwaitEnd:
		if b != EndByte {
			return p.fail(&FramingError{Reason: "bad end marker", Position: p.buf.Len(), Byte: b})
		}
		p.push(b)
		p.complete()
		return ParseComplete, nil
	}

	return ParseContinue, nil
}

// Frame returns the most recently completed frame
func (p *Parser) Frame() Frame {
	return p.last
}

// State returns the current parser state
func (p *Parser) State() State {
	return p.state
}

// Position returns the number of bytes accumulated for the current frame
func (p *Parser) Position() int {
	return p.buf.Len()
}

// Reset discards any partial frame
func (p *Parser) Reset() {
	p.buf.Reset()
	p.state = StateAwaitStart
	p.payloadLen = 0
}

// push cannot overflow: the length check in StateHeader bounds every frame
// to the buffer capacity.
func (p *Parser) push(b byte) {
	_ = p.buf.Append(b)
}

func (p *Parser) complete() {
	data := p.buf.Bytes()
	payload := make([]byte, p.payloadLen)
	copy(payload, data[HeaderSize:HeaderSize+p.payloadLen])
	p.last = Frame{
		Sequence: data[PositionSeq],
		Command:  Command(data[PositionCmd]),
		Payload:  payload,
	}
	p.Reset()
}

func (p *Parser) fail(err error) (Status, error) {
	p.Reset()
	return ParseError, err
}
