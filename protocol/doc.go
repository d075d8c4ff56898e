// Package protocol implements the ESP32 BLE OTA wire protocol.
//
// This package provides functions to build outbound command frames, parse
// inbound device frames, and lay an image out into parts and pieces that fit
// the negotiated transmission unit.
//
// # Protocol Overview
//
// Every frame is a single command byte followed by its payload. There is no
// length prefix, checksum or terminator: the BLE characteristic write (or
// notification) delimits the frame.
//
//	Frame: [CMD][PAYLOAD...]
//
// Outbound (host to device):
//
//	0xFD  -                      delete the staged image
//	0xFE  LEN(4, big-endian)     declare the file length
//	0xFF  PARTS(2) MTU(2)        declare the OTA parameters
//	0xFB  PIECE(1) DATA...       write one piece of the current part
//	0xFC  PART_LEN(2) PART(2)    the part is complete
//
// Inbound (device to host):
//
//	0xAA  MODE(1)                transfer mode: 0 = normal, 1 = fast
//	0xF1  PART(2, big-endian)    request a part
//	0xF2  -                      all parts received, installing
//	0x0F  TEXT...                OTA result or log text (ASCII)
//
// # Command Builders
//
// Use the Build* functions to create outbound frames:
//
//	frame := protocol.BuildDeleteImageCmd()
//	frame, err := protocol.BuildFileLengthCmd(len(image))
//	frame, err := protocol.BuildOTAParamsCmd(parts, mtu)
//	// ... etc
//
// # Frame Parsing
//
// Use Decode to split a notification into command and payload, then the
// Parse* functions for command-specific payloads:
//
//	f, err := protocol.Decode(notification)
//	switch f.Command {
//	case protocol.CmdModeAnnouncement:
//	    mode, err := protocol.ParseModeAnnouncement(f.Payload)
//	case protocol.CmdRequestPart:
//	    part, err := protocol.ParsePartRequest(f.Payload)
//	}
//
// # Layout
//
// An image is split into fixed-size parts (16 KiB by default), and each part
// into pieces no larger than the MTU (200 bytes by default):
//
//	layout, err := protocol.NewLayout(len(image), protocol.DefaultPartSize, protocol.DefaultMTU)
//	for piece := range layout.Pieces(part) {
//	    frame, _ := protocol.BuildPieceCmd(piece.Index, image[piece.Start:piece.End])
//	    // ... write frame
//	}
//
// Pieces returns a lazy sequence that can be ranged over again whenever the
// device requests a part a second time.
package protocol
