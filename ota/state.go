package ota

// State is the transfer state of an Uploader.
type State int

// Transfer states.
const (
	// StateIdle: no session
	StateIdle State = iota

	// StateInitializing: init frames sent, waiting for the mode announcement
	StateInitializing

	// StateUploading: parts are being sent or requested
	StateUploading

	// StateCompleting: the device reported it is installing the image
	StateCompleting

	// StateFailed: the session was aborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateUploading:
		return "uploading"
	case StateCompleting:
		return "completing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
