package protocol

import "encoding/binary"

// Decode splits a wire frame into command and payload.
// The payload aliases b. The only error is ErrEmptyFrame for a zero-length
// input, returned together with the zero Frame; link.Manager passes that
// Frame on to its handler so every notification is observed.
func Decode(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	return Frame{Command: b[0], Payload: b[1:]}, nil
}

// ParseModeAnnouncement parses the Mode Announcement payload.
// Values other than ModeNormal and ModeFast are returned as-is; the caller
// decides whether to act on them.
//
// Payload format:
//
//	[MODE(1)]
func ParseModeAnnouncement(data []byte) (Mode, error) {
	if len(data) < ModeAnnouncementPayloadSize {
		return 0, &PayloadError{Command: CmdModeAnnouncement, Got: len(data), Want: ModeAnnouncementPayloadSize}
	}
	return Mode(data[0]), nil
}

// ParsePartRequest parses the Request Part payload.
//
// Payload format:
//
//	[PART(2, big-endian)]
func ParsePartRequest(data []byte) (int, error) {
	if len(data) < PartRequestPayloadSize {
		return 0, &PayloadError{Command: CmdRequestPart, Got: len(data), Want: PartRequestPayloadSize}
	}
	return int(binary.BigEndian.Uint16(data[0:2])), nil
}

// ParseResultText converts the Result Text payload to a string.
// Each byte is taken as one character.
func ParseResultText(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
