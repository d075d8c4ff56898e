package firmware

import (
	"errors"
	"fmt"
)

// Sentinel validation errors. Returned wrapped in *ValidationError.
var (
	ErrTooShort     = errors.New("image too short")
	ErrBadMagic     = errors.New("wrong magic byte")
	ErrBadFlashMode = errors.New("invalid SPI flash mode")
	ErrBadFlashSize = errors.New("invalid flash size")
	ErrBadFlashFreq = errors.New("invalid flash frequency")
)

// ValidationError reports which header check rejected an image.
type ValidationError struct {
	// Err is one of the sentinel errors above
	Err error

	// Offset is the header byte that failed the check
	Offset int

	// Value is the offending value (the length for ErrTooShort)
	Value int
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrTooShort) {
		return fmt.Sprintf("invalid image: %v (%d bytes, minimum is %d)", e.Err, e.Value, MinImageSize)
	}
	return fmt.Sprintf("invalid image: %v (byte %d = 0x%02X)", e.Err, e.Offset, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
