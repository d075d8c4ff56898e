// Package ota implements the host side of the ESP32 BLE OTA transfer.
//
// # Overview
//
// An Uploader owns one transfer session at a time:
//   - Upload validates the image and sends Delete Image, File Length and
//     OTA Parameters
//   - the device answers with a mode announcement; in normal mode the host
//     sends part 0 and then each part the device requests, in fast mode the
//     host streams every part back to back
//   - each part goes out as numbered pieces, one MTU at most, followed by
//     Part Complete
//   - the device reports Installing when it has the whole image
//
// # Basic Usage
//
// The Uploader writes through a Sender and is fed the frames the device sends:
//
//	up := ota.New(sender,
//	    ota.WithObserver(ota.Callbacks{
//	        Progress: func(p ota.Progress) { fmt.Printf("%d%%\n", p.Percentage) },
//	        Finished: func() { fmt.Println("installing") },
//	    }),
//	)
//
//	if err := up.Upload(ctx, image); err != nil {
//	    log.Fatal(err)
//	}
//
//	// for every notification from the device:
//	frame, _ := protocol.Decode(notification)
//	_ = up.HandleFrame(ctx, frame)
//
// link.Manager wires both directions to a BLE connection and serialises all
// calls on its event loop.
//
// # Link Interruptions
//
// A failed send suspends the session and returns an error wrapping
// ErrSuspended. After the link is back, Resume continues from the current
// part. Abort drops the session.
//
// # Error Handling
//
// The package provides structured error types:
//   - StateError: Upload called while a session is active (wraps ErrUploadInProgress)
//   - ProtocolViolation: inbound frame ignored (logged and counted only)
//   - firmware.ValidationError: image header rejected
package ota
