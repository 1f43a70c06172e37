// Package firmware holds the application image flashed onto the dimmer MCU
package firmware

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"dimctl/protocol"
)

const (
	// DefaultBaseAddress is the start of STM32 internal flash
	DefaultBaseAddress = 0x08000000

	// ChunkSize is the largest block a single write memory command accepts
	ChunkSize = 256
)

// ErrEmptyImage is returned when the firmware file has no content
var ErrEmptyImage = errors.New("firmware image is empty")

// Image is an immutable firmware blob and the version it reports once running
type Image struct {
	Data        []byte
	Major       uint8
	Minor       uint8
	BaseAddress uint32
}

// Chunk is one block of the image at its flash address
type Chunk struct {
	Address uint32
	Data    []byte
}

// New wraps data as an image at the default base address
func New(data []byte, major, minor uint8) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return &Image{
		Data:        data,
		Major:       major,
		Minor:       minor,
		BaseAddress: DefaultBaseAddress,
	}, nil
}

// Load reads a raw binary image from fs
func Load(fs afero.Fs, path string, major, minor uint8) (*Image, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware %s: %w", path, err)
	}

	img, err := New(data, major, minor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Version returns the version the image is expected to report
func (img *Image) Version() protocol.Version {
	return protocol.Version{Major: img.Major, Minor: img.Minor}
}

// Size returns the image length in bytes
func (img *Image) Size() int {
	return len(img.Data)
}

// Chunks splits the image into blocks of at most size bytes; the last one
// may be shorter. The returned data aliases the image.
func (img *Image) Chunks(size int) []Chunk {
	if size <= 0 {
		size = ChunkSize
	}

	chunks := make([]Chunk, 0, (len(img.Data)+size-1)/size)
	for offset := 0; offset < len(img.Data); offset += size {
		end := min(offset+size, len(img.Data))
		chunks = append(chunks, Chunk{
			Address: img.BaseAddress + uint32(offset),
			Data:    img.Data[offset:end],
		})
	}
	return chunks
}
