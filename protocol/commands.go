package protocol

import "encoding/binary"

// Encode returns the wire frame for a command: [cmd] ++ data.
// An empty data slice is valid.
func Encode(cmd byte, data []byte) []byte {
	frame := make([]byte, 0, 1+len(data))
	frame = append(frame, cmd)
	return append(frame, data...)
}

// BuildDeleteImageCmd constructs the Delete Image frame.
// The device removes any previously staged update before a new transfer.
//
// Frame structure:
//
//	[0xFD]
func BuildDeleteImageCmd() []byte {
	return Encode(CmdDeleteImage, nil)
}

// BuildFileLengthCmd constructs the File Length frame.
//
// Frame structure:
//
//	[0xFE][LEN(4, big-endian)]
func BuildFileLengthCmd(fileLen int) ([]byte, error) {
	if fileLen < 0 || int64(fileLen) > MaxFileLength {
		return nil, &FieldRangeError{Field: "file length", Value: int64(fileLen), Max: MaxFileLength}
	}

	var payload [FileLengthPayloadSize]byte
	binary.BigEndian.PutUint32(payload[:], uint32(fileLen))

	return Encode(CmdFileLength, payload[:]), nil
}

// BuildOTAParamsCmd constructs the OTA Parameters frame declaring how many
// parts follow and the largest piece the host will write.
//
// Frame structure:
//
//	[0xFF][PARTS(2, big-endian)][MTU(2, big-endian)]
func BuildOTAParamsCmd(parts, mtu int) ([]byte, error) {
	if parts < 0 || parts > MaxParts {
		return nil, &FieldRangeError{Field: "part count", Value: int64(parts), Max: MaxParts}
	}
	if mtu < 0 || mtu > MaxMTU {
		return nil, &FieldRangeError{Field: "mtu", Value: int64(mtu), Max: MaxMTU}
	}

	var payload [OTAParamsPayloadSize]byte
	binary.BigEndian.PutUint16(payload[0:2], uint16(parts))
	binary.BigEndian.PutUint16(payload[2:4], uint16(mtu))

	return Encode(CmdOTAParams, payload[:]), nil
}

// BuildPieceCmd constructs a Write Piece frame.
// The index is the piece position within its part, not within the image.
//
// Frame structure:
//
//	[0xFB][INDEX(1)][DATA...]
func BuildPieceCmd(index int, data []byte) ([]byte, error) {
	if index < 0 || index >= MaxPiecesPerPart {
		return nil, &FieldRangeError{Field: "piece index", Value: int64(index), Max: MaxPiecesPerPart - 1}
	}

	frame := make([]byte, 0, 2+len(data))
	frame = append(frame, CmdWritePiece, byte(index))
	return append(frame, data...), nil
}

// BuildPartCompleteCmd constructs the Part Complete frame sent after the
// last piece of a part.
//
// Frame structure:
//
//	[0xFC][PART_LEN(2, big-endian)][PART(2, big-endian)]
func BuildPartCompleteCmd(partLen, part int) ([]byte, error) {
	if partLen < 0 || partLen > MaxPartSize {
		return nil, &FieldRangeError{Field: "part length", Value: int64(partLen), Max: MaxPartSize}
	}
	if part < 0 || part > MaxParts {
		return nil, &FieldRangeError{Field: "part index", Value: int64(part), Max: MaxParts}
	}

	var payload [PartCompletePayloadSize]byte
	binary.BigEndian.PutUint16(payload[0:2], uint16(partLen))
	binary.BigEndian.PutUint16(payload[2:4], uint16(part))

	return Encode(CmdPartComplete, payload[:]), nil
}
