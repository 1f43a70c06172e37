// Package stm32 implements the host side of the STM32 USART bootloader
// (AN3155) far enough to mass erase the internal flash and program it.
//
// The port must be configured for 8E1 before the first command; the
// bootloader detects the baud rate from the initial sync byte.
package stm32

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
)

// Bootloader wire constants
const (
	Sync = 0x7F
	ACK  = 0x79
	NACK = 0x1F

	CmdGet           = 0x00
	CmdGetID         = 0x02
	CmdWriteMemory   = 0x31
	CmdErase         = 0x43
	CmdExtendedErase = 0x44

	// MaxWriteSize is the largest block accepted by write memory
	MaxWriteSize = 256
)

// Info describes the connected bootloader
type Info struct {
	Version   uint8
	Commands  []byte
	ProductID uint16
}

// Client talks to the ROM bootloader. It is not safe for concurrent use.
type Client struct {
	port   io.ReadWriter
	config Config

	connected bool
	info      Info
}

// New creates a client; the connection is established on first use
func New(port io.ReadWriter, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		port:   port,
		config: cfg,
	}
}

// Connect synchronizes with the bootloader and reads its command set and
// product id
func (c *Client) Connect(ctx context.Context) error {
	if err := c.write(Sync); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	// A NACK means the bootloader already locked onto an earlier sync byte
	reply, err := c.readByte(ctx, c.config.AckTimeout)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if reply != ACK && reply != NACK {
		return &UnexpectedByteError{Command: Sync, Byte: reply}
	}

	data, err := c.query(ctx, CmdGet)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	info := Info{Version: data[0], Commands: data[1:]}

	data, err = c.query(ctx, CmdGetID)
	if err != nil {
		return fmt.Errorf("get id: %w", err)
	}
	if len(data) >= 2 {
		info.ProductID = uint16(data[0])<<8 | uint16(data[1])
	}

	c.info = info
	c.connected = true

	log.Info().
		Str("bootloader", fmt.Sprintf("%d.%d", info.Version>>4, info.Version&0x0F)).
		Str("pid", fmt.Sprintf("0x%04X", info.ProductID)).
		Bool("extended_erase", c.extendedErase()).
		Msg("connected to stm32 bootloader")

	return nil
}

// Info returns what the bootloader reported on connect
func (c *Client) Info() Info {
	return c.info
}

// EraseAll performs a mass erase of the flash
func (c *Client) EraseAll(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	cmd := byte(CmdErase)
	args := []byte{0xFF, 0x00}
	if c.extendedErase() {
		cmd = CmdExtendedErase
		args = []byte{0xFF, 0xFF, 0x00}
	}

	if err := c.command(ctx, cmd); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	if err := c.write(args...); err != nil {
		return fmt.Errorf("erase: %w", err)
	}

	log.Debug().Msg("waiting for mass erase")
	if err := c.awaitAck(ctx, cmd, "mass erase", c.config.EraseTimeout); err != nil {
		return fmt.Errorf("erase: %w", err)
	}

	return nil
}

// WriteChunk writes up to MaxWriteSize bytes at addr. Data is padded with
// 0xFF to a multiple of four bytes.
func (c *Client) WriteChunk(ctx context.Context, addr uint32, data []byte) error {
	if len(data) == 0 || len(data) > MaxWriteSize {
		return fmt.Errorf("write of %d bytes at 0x%08X: size must be 1-%d", len(data), addr, MaxWriteSize)
	}
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	if err := c.command(ctx, CmdWriteMemory); err != nil {
		return fmt.Errorf("write 0x%08X: %w", addr, err)
	}

	address := []byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}
	if err := c.write(append(address, xor(address))...); err != nil {
		return fmt.Errorf("write 0x%08X: %w", addr, err)
	}
	if err := c.awaitAck(ctx, CmdWriteMemory, "address", c.config.AckTimeout); err != nil {
		return fmt.Errorf("write 0x%08X: %w", addr, err)
	}

	padded := pad(data)
	block := make([]byte, 0, len(padded)+2)
	block = append(block, byte(len(padded)-1))
	block = append(block, padded...)
	block = append(block, xor(block))
	if err := c.write(block...); err != nil {
		return fmt.Errorf("write 0x%08X: %w", addr, err)
	}
	if err := c.awaitAck(ctx, CmdWriteMemory, "data", c.config.AckTimeout); err != nil {
		return fmt.Errorf("write 0x%08X: %w", addr, err)
	}

	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.connected {
		return nil
	}
	return c.Connect(ctx)
}

func (c *Client) extendedErase() bool {
	return slices.Contains(c.info.Commands, CmdExtendedErase)
}

// command sends a command byte with its complement and waits for the ACK
func (c *Client) command(ctx context.Context, cmd byte) error {
	if err := c.write(cmd, ^cmd); err != nil {
		return err
	}
	return c.awaitAck(ctx, cmd, "command", c.config.AckTimeout)
}

// query runs a command answering with a length byte, N+1 data bytes and ACK
func (c *Client) query(ctx context.Context, cmd byte) ([]byte, error) {
	if err := c.command(ctx, cmd); err != nil {
		return nil, err
	}

	n, err := c.readByte(ctx, c.config.AckTimeout)
	if err != nil {
		return nil, err
	}

	data := make([]byte, int(n)+1)
	for i := range data {
		if data[i], err = c.readByte(ctx, c.config.AckTimeout); err != nil {
			return nil, err
		}
	}

	if err := c.awaitAck(ctx, cmd, "reply", c.config.AckTimeout); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) awaitAck(ctx context.Context, cmd byte, stage string, timeout time.Duration) error {
	reply, err := c.readByte(ctx, timeout)
	if err != nil {
		return err
	}

	switch reply {
	case ACK:
		return nil
	case NACK:
		return &NackError{Command: cmd, Stage: stage}
	default:
		return &UnexpectedByteError{Command: cmd, Byte: reply}
	}
}

func (c *Client) write(data ...byte) error {
	n, err := c.port.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(data))
	}
	return nil
}

func (c *Client) readByte(ctx context.Context, timeout time.Duration) (byte, error) {
	var buf [1]byte
	start := c.config.Clock.Now()

	for c.config.Clock.Since(start) < timeout {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := c.port.Read(buf[:])
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n == 1 {
			return buf[0], nil
		}
		if c.config.PollInterval > 0 {
			c.config.Clock.Sleep(c.config.PollInterval)
		}
	}

	return 0, ErrNoResponse
}

func pad(data []byte) []byte {
	padded := slices.Clone(data)
	for len(padded)%4 != 0 {
		padded = append(padded, 0xFF)
	}
	return padded
}

func xor(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}
