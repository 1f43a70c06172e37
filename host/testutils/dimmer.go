package testutils

import (
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"dimctl/host/gpio"
	"dimctl/host/serial"
	"dimctl/protocol"
)

// FakeDimmer simulates the dimmer MCU behind a MockPort: the application
// protocol in 8N1 and, when booted with BOOT0 high, the ROM bootloader in 8E1.
type FakeDimmer struct {
	mu sync.Mutex

	port       *MockPort
	peer       *protocol.Peer
	bootloader *FakeBootloader

	version        protocol.Version
	flashedVersion *protocol.Version
	report         []byte
	status         map[protocol.Command]byte
	silent         bool
	frames         []protocol.Frame

	boot0        bool
	inReset      bool
	inBootloader bool
	boots        int
}

// NewFakeDimmer creates a dimmer running firmware 51.7 with an idle poll report
func NewFakeDimmer(clock *clockwork.FakeClock) *FakeDimmer {
	d := &FakeDimmer{
		bootloader: NewFakeBootloader(),
		version:    protocol.Version{Major: 51, Minor: 7},
		report:     make([]byte, protocol.PollReportMinSize+1),
		status:     make(map[protocol.Command]byte),
	}
	d.peer = protocol.NewPeer(d.handle)
	d.port = NewMockPort(clock, d.respond)
	return d
}

// Port returns the host end of the serial link
func (d *FakeDimmer) Port() *MockPort {
	return d.port
}

// Bootloader returns the simulated ROM bootloader
func (d *FakeDimmer) Bootloader() *FakeBootloader {
	return d.bootloader
}

// ResetLine is wired to NRST; low holds the MCU in reset
func (d *FakeDimmer) ResetLine() gpio.Line {
	return gpio.LineFunc(func(high bool) error {
		d.mu.Lock()
		defer d.mu.Unlock()

		if !high {
			d.inReset = true
			return nil
		}
		if d.inReset {
			d.boot()
		}
		d.inReset = false
		return nil
	})
}

// Boot0Line is wired to BOOT0; high selects the ROM bootloader on reset
func (d *FakeDimmer) Boot0Line() gpio.Line {
	return gpio.LineFunc(func(high bool) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.boot0 = high
		return nil
	})
}

func (d *FakeDimmer) boot() {
	d.boots++
	if d.inBootloader && d.bootloader.Writes > 0 && d.flashedVersion != nil {
		d.version = *d.flashedVersion
	}
	d.inBootloader = d.boot0
	d.bootloader.Restart()
}

// SetVersion sets the version reported by the running firmware
func (d *FakeDimmer) SetVersion(v protocol.Version) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = v
}

// SetFlashedVersion sets the version reported after the bootloader was used
// to write an image
func (d *FakeDimmer) SetFlashedVersion(v protocol.Version) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flashedVersion = &v
}

// SetReport sets the poll reply payload
func (d *FakeDimmer) SetReport(payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report = slices.Clone(payload)
}

// SetStatus sets the status byte answered to switch or settings
func (d *FakeDimmer) SetStatus(cmd protocol.Command, status byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status[cmd] = status
}

// SetSilent stops the firmware from answering
func (d *FakeDimmer) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// Frames returns every well formed frame the firmware received
func (d *FakeDimmer) Frames() []protocol.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.frames)
}

// Commands returns the command ids of Frames
func (d *FakeDimmer) Commands() []protocol.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmds := make([]protocol.Command, len(d.frames))
	for i, f := range d.frames {
		cmds[i] = f.Command
	}
	return cmds
}

// Boots returns how many times the MCU left reset
func (d *FakeDimmer) Boots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boots
}

// InBootloader reports whether the MCU last booted into the ROM bootloader
func (d *FakeDimmer) InBootloader() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inBootloader
}

func (d *FakeDimmer) respond(data []byte, parity serial.Parity) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inReset {
		return nil
	}
	if d.inBootloader {
		if parity != serial.ParityEven {
			return nil
		}
		return d.bootloader.Receive(data)
	}
	if parity != serial.ParityNone {
		return nil
	}
	return d.peer.Receive(data)
}

// handle runs with d.mu held
func (d *FakeDimmer) handle(cmd protocol.Command, payload []byte) ([]byte, bool) {
	d.frames = append(d.frames, protocol.Frame{Command: cmd, Payload: slices.Clone(payload)})
	if d.silent {
		return nil, false
	}

	switch cmd {
	case protocol.CmdSwitch, protocol.CmdSettings:
		status, ok := d.status[cmd]
		if !ok {
			status = protocol.StatusOK
		}
		return []byte{status}, true
	case protocol.CmdPoll:
		return slices.Clone(d.report), true
	case protocol.CmdVersion:
		return []byte{d.version.Minor, d.version.Major}, true
	default:
		return nil, false
	}
}
