package link

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations that need a connected device.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect while a device is selected.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNoHandler is returned by Upload before Attach.
	ErrNoHandler = errors.New("no transfer handler attached")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("manager closed")
)

// LinkError reports a failure to select, connect to or discover a device.
type LinkError struct {
	// Op is the step that failed, e.g. "request device" or "discover service"
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// IsLinkError returns true if the error is a LinkError.
func IsLinkError(err error) bool {
	var le *LinkError
	return errors.As(err, &le)
}
