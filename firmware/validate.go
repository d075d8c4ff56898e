package firmware

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Validate checks the header of an ESP32 application image and returns its metadata.
// It does not modify or retain buf.
//
// Checks, in order:
//   - at least MinImageSize bytes
//   - byte 0 is ImageMagic
//   - flash mode (byte 2) is 0..4
//   - flash size code (byte 3 high nibble) is 0..4
//   - flash frequency code (byte 3 low nibble) is 0, 1, 2 or 15
func Validate(buf []byte) (*Metadata, error) {
	if len(buf) < MinImageSize {
		return nil, &ValidationError{Err: ErrTooShort, Value: len(buf)}
	}

	if buf[0] != ImageMagic {
		return nil, &ValidationError{Err: ErrBadMagic, Offset: 0, Value: int(buf[0])}
	}

	mode := FlashMode(buf[OffsetFlashMode])
	if mode > FlashModeFastRead {
		return nil, &ValidationError{Err: ErrBadFlashMode, Offset: OffsetFlashMode, Value: int(mode)}
	}

	config := buf[OffsetFlashConfig]

	size := FlashSize(config >> 4)
	if size > FlashSize16MB {
		return nil, &ValidationError{Err: ErrBadFlashSize, Offset: OffsetFlashConfig, Value: int(config)}
	}

	freq := FlashFreq(config & 0x0F)
	switch freq {
	case FlashFreq40MHz, FlashFreq26MHz, FlashFreq20MHz, FlashFreq80MHz:
	default:
		return nil, &ValidationError{Err: ErrBadFlashFreq, Offset: OffsetFlashConfig, Value: int(config)}
	}

	return &Metadata{
		FlashMode:    mode,
		FlashSize:    size,
		FlashFreq:    freq,
		SegmentCount: int(buf[OffsetSegmentCount]),
		EntryPoint:   binary.LittleEndian.Uint32(buf[OffsetEntryPoint : OffsetEntryPoint+4]),
		App:          ParseAppDescriptor(buf),
	}, nil
}

// New validates data and returns an Image holding a private copy of it.
func New(data []byte) (*Image, error) {
	meta, err := Validate(data)
	if err != nil {
		return nil, err
	}

	owned := make([]byte, len(data))
	copy(owned, data)

	return &Image{data: owned, meta: *meta}, nil
}

// Load reads and validates an image file.
//
// Example:
//
//	img, err := firmware.Load("build/app.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read reads an image from r until EOF and validates it.
func Read(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	meta, err := Validate(data)
	if err != nil {
		return nil, err
	}

	return &Image{data: data, meta: *meta}, nil
}
