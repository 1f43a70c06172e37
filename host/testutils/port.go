// Package testutils provides a scripted serial port and simulated dimmer
// hardware for tests.
package testutils

import (
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"dimctl/host/serial"
)

// Responder produces the bytes a device sends back after receiving data
type Responder func(data []byte, parity serial.Parity) []byte

// MockPort is an in-memory serial.Port. Reads with nothing queued advance
// the fake clock by a millisecond and report io.EOF like tarm/serial does
// on a read timeout.
type MockPort struct {
	mu sync.Mutex

	clock     *clockwork.FakeClock
	responder Responder
	parity    serial.Parity

	writes   [][]byte
	rx       []byte
	flushes  int
	resets   int
	closed   bool
	parities []serial.Parity

	// ReadErr and WriteErr, when set, are returned by every call
	ReadErr  error
	WriteErr error
}

// NewMockPort creates a port in 8N1 mode
func NewMockPort(clock *clockwork.FakeClock, responder Responder) *MockPort {
	return &MockPort{
		clock:     clock,
		responder: responder,
		parity:    serial.ParityNone,
	}
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.ReadErr != nil {
		defer p.mu.Unlock()
		return 0, p.ReadErr
	}
	if len(p.rx) == 0 {
		p.mu.Unlock()
		p.clock.Advance(time.Millisecond)
		return 0, io.EOF
	}
	defer p.mu.Unlock()

	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	if p.responder != nil {
		p.rx = append(p.rx, p.responder(b, p.parity)...)
	}
	return len(b), nil
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *MockPort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *MockPort) ResetInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.rx = nil
	return nil
}

func (p *MockPort) SetParity(parity serial.Parity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parity = parity
	p.parities = append(p.parities, parity)
	return nil
}

// Inject queues bytes as if the device had sent them unprompted
func (p *MockPort) Inject(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = append(p.rx, data...)
}

// Writes returns a copy of every write so far
func (p *MockPort) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// Parity returns the current line parity
func (p *MockPort) Parity() serial.Parity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parity
}

// ParityChanges lists every SetParity call in order
func (p *MockPort) ParityChanges() []serial.Parity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]serial.Parity(nil), p.parities...)
}

// Flushes returns the number of Flush calls
func (p *MockPort) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// InputResets returns the number of ResetInput calls
func (p *MockPort) InputResets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Closed reports whether Close was called
func (p *MockPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
