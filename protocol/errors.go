package protocol

import (
	"errors"
	"fmt"
)

// ErrEmptyFrame is returned by Decode for a zero-length input.
var ErrEmptyFrame = errors.New("empty frame")

// PayloadError reports an inbound payload that does not match its command's format.
type PayloadError struct {
	// Command is the frame's command code
	Command byte

	// Got is the payload length received
	Got int

	// Want is the minimum payload length required
	Want int
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s payload too short: got %d bytes, expected %d",
		CommandName(e.Command), e.Got, e.Want)
}

// IsPayloadError returns true if the error is a PayloadError.
func IsPayloadError(err error) bool {
	var pe *PayloadError
	return errors.As(err, &pe)
}

// FieldRangeError reports a value that does not fit its wire field.
type FieldRangeError struct {
	// Field names the frame field
	Field string

	// Value is the rejected value
	Value int64

	// Max is the largest value the field can carry
	Max int64
}

func (e *FieldRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range: valid range is 0-%d", e.Field, e.Value, e.Max)
}
