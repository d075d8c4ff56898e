package firmware

import "fmt"

// Header layout constants.
const (
	// MinImageSize is the minimum image length in bytes: the image header plus
	// the first segment header.
	MinImageSize = 32

	// ImageMagic is the first byte of every ESP32 application image.
	ImageMagic = 0xE9

	// OffsetSegmentCount is the offset of the segment count byte.
	OffsetSegmentCount = 1

	// OffsetFlashMode is the offset of the SPI flash mode byte.
	OffsetFlashMode = 2

	// OffsetFlashConfig is the offset of the flash size / frequency byte.
	OffsetFlashConfig = 3

	// OffsetEntryPoint is the offset of the 32-bit little-endian entry address.
	OffsetEntryPoint = 4
)

// FlashMode is the SPI flash access mode recorded in the image header.
type FlashMode byte

// SPI flash modes.
const (
	FlashModeQIO      FlashMode = 0
	FlashModeQOUT     FlashMode = 1
	FlashModeDIO      FlashMode = 2
	FlashModeDOUT     FlashMode = 3
	FlashModeFastRead FlashMode = 4
)

func (m FlashMode) String() string {
	switch m {
	case FlashModeQIO:
		return "QIO"
	case FlashModeQOUT:
		return "QOUT"
	case FlashModeDIO:
		return "DIO"
	case FlashModeDOUT:
		return "DOUT"
	case FlashModeFastRead:
		return "FAST_READ"
	default:
		return fmt.Sprintf("FlashMode(%d)", byte(m))
	}
}

// FlashSize is the flash chip size code from the high nibble of header byte 3.
type FlashSize byte

// Flash size codes.
const (
	FlashSize1MB  FlashSize = 0
	FlashSize2MB  FlashSize = 1
	FlashSize4MB  FlashSize = 2
	FlashSize8MB  FlashSize = 3
	FlashSize16MB FlashSize = 4
)

var flashSizeLabels = [...]string{"1MB", "2MB", "4MB", "8MB", "16MB"}

func (s FlashSize) String() string {
	if int(s) < len(flashSizeLabels) {
		return flashSizeLabels[s]
	}
	return fmt.Sprintf("FlashSize(%d)", byte(s))
}

// Bytes returns the flash size in bytes, or 0 for an unknown code.
func (s FlashSize) Bytes() int {
	if int(s) >= len(flashSizeLabels) {
		return 0
	}
	return (1 << 20) << s
}

// FlashFreq is the flash clock code from the low nibble of header byte 3.
type FlashFreq byte

// Flash frequency codes.
const (
	FlashFreq40MHz FlashFreq = 0x0
	FlashFreq26MHz FlashFreq = 0x1
	FlashFreq20MHz FlashFreq = 0x2
	FlashFreq80MHz FlashFreq = 0xF
)

func (f FlashFreq) String() string {
	switch f {
	case FlashFreq40MHz:
		return "40MHz"
	case FlashFreq26MHz:
		return "26MHz"
	case FlashFreq20MHz:
		return "20MHz"
	case FlashFreq80MHz:
		return "80MHz"
	default:
		return fmt.Sprintf("FlashFreq(%d)", byte(f))
	}
}

// Metadata is the information extracted from a valid image header.
type Metadata struct {
	// FlashMode is the SPI flash access mode
	FlashMode FlashMode

	// FlashSize is the flash chip size the image was built for
	FlashSize FlashSize

	// FlashFreq is the flash clock frequency
	FlashFreq FlashFreq

	// SegmentCount is the number of segments following the header
	SegmentCount int

	// EntryPoint is the application entry address
	EntryPoint uint32

	// App is the ESP-IDF application descriptor, nil if the image has none
	App *AppDescriptor
}

// Image is an immutable, validated firmware image.
type Image struct {
	data []byte
	meta Metadata
}

// Bytes returns the raw image. The returned slice must not be modified.
func (img *Image) Bytes() []byte {
	return img.data
}

// Len returns the image length in bytes.
func (img *Image) Len() int {
	return len(img.data)
}

// Metadata returns the header metadata.
func (img *Image) Metadata() Metadata {
	return img.meta
}
