package protocol

import (
	"fmt"
	"strings"
)

// Frame is one command and its payload as exchanged over the link.
type Frame struct {
	// Command is the one-byte command code
	Command byte

	// Payload is everything after the command byte (may be empty)
	Payload []byte
}

// Bytes returns the wire encoding of the frame.
func (f Frame) Bytes() []byte {
	return Encode(f.Command, f.Payload)
}

// String renders the frame as space-separated hex bytes, e.g. "fe 00 01 00 00".
func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%02x", f.Command)
	for _, c := range f.Payload {
		fmt.Fprintf(&b, " %02x", c)
	}
	return b.String()
}

// Mode is the transfer mode announced by the device.
type Mode byte

// Transfer modes.
const (
	// ModeNormal: the device requests every part after the first
	ModeNormal Mode = 0

	// ModeFast: the host streams every part without waiting for requests
	ModeFast Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeFast:
		return "fast"
	default:
		return fmt.Sprintf("mode(%d)", byte(m))
	}
}

// CommandName returns a short human-readable name for a command code.
func CommandName(cmd byte) string {
	switch cmd {
	case CmdDeleteImage:
		return "delete image"
	case CmdFileLength:
		return "file length"
	case CmdOTAParams:
		return "ota params"
	case CmdWritePiece:
		return "write piece"
	case CmdPartComplete:
		return "part complete"
	case CmdModeAnnouncement:
		return "mode"
	case CmdRequestPart:
		return "request part"
	case CmdInstalling:
		return "installing"
	case CmdResultText:
		return "result"
	default:
		return fmt.Sprintf("unknown 0x%02X", cmd)
	}
}
