package ota

import (
	"errors"
	"fmt"
)

var (
	// ErrUploadInProgress is wrapped by the StateError returned when Upload is
	// called while a session is active.
	ErrUploadInProgress = errors.New("upload is already in progress")

	// ErrEmptyImage is returned by Upload for a zero-length image.
	ErrEmptyImage = errors.New("image is empty")

	// ErrSuspended is wrapped by every error caused by a failed send. The
	// session is kept and can be continued with Resume.
	ErrSuspended = errors.New("transfer suspended")
)

// StateError indicates an operation that is not legal in the current state.
type StateError struct {
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed in state %s: %v", e.Op, e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// ProtocolViolation describes an inbound frame the uploader could not act on.
// Violations are logged and counted, never returned from HandleFrame.
type ProtocolViolation struct {
	Command byte
	Reason  string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation (command 0x%02X): %s", e.Command, e.Reason)
}
