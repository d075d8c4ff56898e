package protocol

// Outbound command codes (host to device).
const (
	// CmdDeleteImage asks the device to remove any staged update image
	CmdDeleteImage = 0xFD

	// CmdFileLength declares the total image length (4 bytes, big-endian)
	CmdFileLength = 0xFE

	// CmdOTAParams declares the part count and MTU (2+2 bytes, big-endian)
	CmdOTAParams = 0xFF

	// CmdWritePiece carries one piece of the current part, prefixed by its index
	CmdWritePiece = 0xFB

	// CmdPartComplete closes a part with its byte count and index (2+2 bytes, big-endian)
	CmdPartComplete = 0xFC
)

// Inbound command codes (device to host).
const (
	// CmdModeAnnouncement selects normal (0) or fast (1) transfer mode
	CmdModeAnnouncement = 0xAA

	// CmdRequestPart asks for a part by index (2 bytes, big-endian)
	CmdRequestPart = 0xF1

	// CmdInstalling reports that every part arrived and installation started
	CmdInstalling = 0xF2

	// CmdResultText carries a human-readable OTA result or log line
	CmdResultText = 0x0F
)

// Transfer defaults.
const (
	// DefaultMTU is the default piece payload size in bytes
	DefaultMTU = 200

	// DefaultPartSize is the default part size in bytes (16 KiB)
	DefaultPartSize = 16384

	// MaxPiecesPerPart is the number of distinct piece indexes (one byte)
	MaxPiecesPerPart = 256

	// MaxParts is the largest part count the OTA parameters frame can carry
	MaxParts = 0xFFFF

	// MaxPartSize is the largest part byte count the part complete frame can carry
	MaxPartSize = 0xFFFF

	// MaxMTU is the largest MTU the OTA parameters frame can carry
	MaxMTU = 0xFFFF

	// MaxFileLength is the largest image length the file length frame can carry
	MaxFileLength = 0xFFFFFFFF
)

// Payload sizes of fixed-format frames.
const (
	// FileLengthPayloadSize is the payload size of CmdFileLength
	FileLengthPayloadSize = 4

	// OTAParamsPayloadSize is the payload size of CmdOTAParams
	OTAParamsPayloadSize = 4

	// PartCompletePayloadSize is the payload size of CmdPartComplete
	PartCompletePayloadSize = 4

	// ModeAnnouncementPayloadSize is the minimum payload size of CmdModeAnnouncement
	ModeAnnouncementPayloadSize = 1

	// PartRequestPayloadSize is the minimum payload size of CmdRequestPart
	PartRequestPayloadSize = 2
)

// GATT identifiers of the OTA service.
const (
	// ServiceUUID is the OTA UART-style service
	ServiceUUID = "fb1e4001-54ae-4a28-9f74-dfccb248601d"

	// RxCharUUID is the characteristic the host writes frames to
	RxCharUUID = "fb1e4002-54ae-4a28-9f74-dfccb248601d"

	// TxCharUUID is the characteristic the device notifies frames on
	TxCharUUID = "fb1e4003-54ae-4a28-9f74-dfccb248601d"
)
