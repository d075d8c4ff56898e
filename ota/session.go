package ota

import (
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-esp32ota/protocol"
)

// Session is the state of one upload. An Uploader holds at most one.
type Session struct {
	// ID identifies the session in logs and captures
	ID uuid.UUID

	// Layout is the part and piece split of the image
	Layout protocol.Layout

	// CurrentPart is the part being sent, or the last one sent
	CurrentPart int

	// Mode is the transfer mode; only meaningful when ModeKnown is set
	Mode      protocol.Mode
	ModeKnown bool

	// Suspended is set when a send failed and cleared by Resume
	Suspended bool

	// StartedAt is when Upload was called
	StartedAt time.Time

	image     []byte
	sent      []bool
	bytesSent int
}

// PartCount returns the number of parts in the session.
func (s *Session) PartCount() int {
	return s.Layout.PartCount()
}

// FileLen returns the image length.
func (s *Session) FileLen() int {
	return s.Layout.FileLen()
}
