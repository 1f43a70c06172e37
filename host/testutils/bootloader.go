package testutils

// Subset of the STM32 USART bootloader wire protocol
const (
	blSync = 0x7F
	blACK  = 0x79
	blNACK = 0x1F

	blVersion = 0x31
)

type blState int

const (
	blCommand blState = iota
	blEraseArgs
	blExtendedEraseArgs
	blWriteAddress
	blWriteData
)

// FakeBootloader emulates the ROM bootloader of an STM32 over a byte stream
type FakeBootloader struct {
	// Commands advertised by Get. The default set includes extended erase.
	Commands  []byte
	ProductID uint16

	// NackErase and NackWrite make the matching step fail
	NackErase bool
	NackWrite bool

	// Silent drops every byte
	Silent bool

	Flash  map[uint32]byte
	Erases int
	Writes int

	synced  bool
	state   blState
	address uint32
	in      []byte
}

// NewFakeBootloader creates a bootloader with an empty flash
func NewFakeBootloader() *FakeBootloader {
	return &FakeBootloader{
		Commands:  []byte{0x00, 0x01, 0x02, 0x11, 0x21, 0x31, 0x44, 0x63, 0x73, 0x82, 0x92},
		ProductID: 0x0440,
		Flash:     make(map[uint32]byte),
	}
}

// Restart forgets the sync state like a reset of the MCU does
func (b *FakeBootloader) Restart() {
	b.synced = false
	b.state = blCommand
	b.in = nil
}

// Read returns n bytes of flash from addr, 0xFF where nothing was written
func (b *FakeBootloader) Read(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		v, ok := b.Flash[addr+uint32(i)]
		if !ok {
			v = 0xFF
		}
		out[i] = v
	}
	return out
}

// Receive consumes host bytes and returns the bootloader's answer
func (b *FakeBootloader) Receive(data []byte) []byte {
	if b.Silent {
		return nil
	}

	b.in = append(b.in, data...)
	var out []byte
	for {
		reply, ok := b.step()
		if !ok {
			return out
		}
		out = append(out, reply...)
	}
}

func (b *FakeBootloader) step() ([]byte, bool) {
	switch b.state {
	case blCommand:
		if len(b.in) == 0 {
			return nil, false
		}
		if b.in[0] == blSync {
			b.in = b.in[1:]
			if b.synced {
				return []byte{blNACK}, true
			}
			b.synced = true
			return []byte{blACK}, true
		}
		if !b.synced {
			b.in = b.in[1:]
			return nil, true
		}
		if len(b.in) < 2 {
			return nil, false
		}
		cmd, complement := b.in[0], b.in[1]
		b.in = b.in[2:]
		if complement != ^cmd {
			return []byte{blNACK}, true
		}
		return b.command(cmd), true

	case blEraseArgs:
		return b.erase(2, []byte{0xFF, 0x00})

	case blExtendedEraseArgs:
		return b.erase(3, []byte{0xFF, 0xFF, 0x00})

	case blWriteAddress:
		if len(b.in) < 5 {
			return nil, false
		}
		addr := b.in[:5]
		b.in = b.in[5:]
		if addr[0]^addr[1]^addr[2]^addr[3] != addr[4] {
			b.state = blCommand
			return []byte{blNACK}, true
		}
		b.address = uint32(addr[0])<<24 | uint32(addr[1])<<16 | uint32(addr[2])<<8 | uint32(addr[3])
		b.state = blWriteData
		return []byte{blACK}, true

	case blWriteData:
		if len(b.in) < 1 {
			return nil, false
		}
		n := int(b.in[0]) + 1
		if len(b.in) < n+2 {
			return nil, false
		}
		block := b.in[:n+2]
		b.in = b.in[n+2:]
		b.state = blCommand

		var sum byte
		for _, v := range block[:n+1] {
			sum ^= v
		}
		if sum != block[n+1] || n%4 != 0 || b.NackWrite {
			return []byte{blNACK}, true
		}
		for i, v := range block[1 : n+1] {
			b.Flash[b.address+uint32(i)] = v
		}
		b.Writes++
		return []byte{blACK}, true
	}

	return nil, false
}

func (b *FakeBootloader) command(cmd byte) []byte {
	switch cmd {
	case 0x00:
		out := []byte{blACK, byte(len(b.Commands)), blVersion}
		out = append(out, b.Commands...)
		return append(out, blACK)
	case 0x02:
		return []byte{blACK, 0x01, byte(b.ProductID >> 8), byte(b.ProductID), blACK}
	case 0x43:
		b.state = blEraseArgs
		return []byte{blACK}
	case 0x44:
		b.state = blExtendedEraseArgs
		return []byte{blACK}
	case 0x31:
		b.state = blWriteAddress
		return []byte{blACK}
	default:
		return []byte{blNACK}
	}
}

func (b *FakeBootloader) erase(n int, mass []byte) ([]byte, bool) {
	if len(b.in) < n {
		return nil, false
	}
	args := b.in[:n]
	b.in = b.in[n:]
	b.state = blCommand

	if string(args) != string(mass) || b.NackErase {
		return []byte{blNACK}, true
	}
	clear(b.Flash)
	b.Erases++
	return []byte{blACK}, true
}
