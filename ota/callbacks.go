package ota

import (
	"time"

	"github.com/moffa90/go-esp32ota/protocol"
)

// Progress is reported before each part is sent.
type Progress struct {
	// Part is the part about to be sent (0-based)
	Part int

	// TotalParts is the number of parts in the session
	TotalParts int

	// Percentage is floor(Part*100/TotalParts)
	Percentage int

	// BytesSent is the number of piece bytes written so far in this session
	BytesSent int

	// Elapsed is the time since Upload was called
	Elapsed time.Duration
}

// Observer receives transfer events. Methods are called from the goroutine
// that drives the Uploader and must return quickly.
type Observer interface {
	// OnMessage receives every inbound frame, recognised or not
	OnMessage(frame protocol.Frame)

	// OnUploadProgress is called before each part is sent
	OnUploadProgress(p Progress)

	// OnUploadFinished is called once when the device reports it is installing
	OnUploadFinished()

	// OnResult receives result text sent by the device
	OnResult(text string)
}

// Callbacks adapts plain functions to the Observer interface.
// Nil fields are skipped.
//
// Example:
//
//	up := ota.New(sender, ota.WithObserver(ota.Callbacks{
//	    Progress: func(p ota.Progress) { fmt.Printf("%d%%\n", p.Percentage) },
//	    Finished: func() { fmt.Println("installing") },
//	}))
type Callbacks struct {
	Message  func(frame protocol.Frame)
	Progress func(p Progress)
	Finished func()
	Result   func(text string)
}

func (c Callbacks) OnMessage(frame protocol.Frame) {
	if c.Message != nil {
		c.Message(frame)
	}
}

func (c Callbacks) OnUploadProgress(p Progress) {
	if c.Progress != nil {
		c.Progress(p)
	}
}

func (c Callbacks) OnUploadFinished() {
	if c.Finished != nil {
		c.Finished()
	}
}

func (c Callbacks) OnResult(text string) {
	if c.Result != nil {
		c.Result(text)
	}
}

// Logger is an optional logging interface that can be provided to the uploader.
// This allows integration with any logging framework; see package zaplog.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
