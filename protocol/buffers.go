package protocol

// FrameBuffer is a fixed capacity byte buffer holding one frame under
// construction. Writes past MaxFrameSize are rejected instead of truncated.
type FrameBuffer struct {
	buf [MaxFrameSize]byte
	pos int
}

// Append adds one byte to the buffer
func (f *FrameBuffer) Append(b byte) error {
	if f.pos >= len(f.buf) {
		return ErrBufferFull
	}
	f.buf[f.pos] = b
	f.pos++
	return nil
}

// Write appends data to the buffer, all or nothing
func (f *FrameBuffer) Write(data []byte) (int, error) {
	if f.pos+len(data) > len(f.buf) {
		return 0, ErrBufferFull
	}
	n := copy(f.buf[f.pos:], data)
	f.pos += n
	return n, nil
}

// Len returns the number of bytes held
func (f *FrameBuffer) Len() int {
	return f.pos
}

// Cap returns the fixed capacity
func (f *FrameBuffer) Cap() int {
	return len(f.buf)
}

// At returns the byte at position i. The caller must ensure i < Len().
func (f *FrameBuffer) At(i int) byte {
	return f.buf[i]
}

// Bytes returns the accumulated data. The slice aliases the buffer and is
// only valid until the next Reset.
func (f *FrameBuffer) Bytes() []byte {
	return f.buf[:f.pos]
}

// Reset clears the buffer
func (f *FrameBuffer) Reset() {
	f.pos = 0
}
