// Package link owns the BLE connection used for an OTA transfer.
//
// A Manager selects a device through a Transport, connects, discovers the
// OTA service (fb1e4001-...) with its writable (fb1e4002-...) and notifying
// (fb1e4003-...) characteristics, and routes every notification to the
// attached Handler, normally an *ota.Uploader.
//
// # Reconnect Policy
//
// A drop the user did not ask for suspends the transfer and schedules a
// reconnect after ReconnectDelay. A write that fails while the link still
// reports connected is handled the same way: the connection is closed and
// reopened. Failed attempts, including a resume whose writes fail, are
// rescheduled until MaxReconnectAttempts is reached (zero retries until
// Disconnect). After a successful reconnect the transfer resumes at the
// part it was on. The initial Connect is never retried.
//
// # Event Loop
//
// All protocol work runs on one goroutine per Manager. Notifications,
// disconnect events, reconnect timers and API calls are queued and run in
// order, so the Handler never sees concurrent calls. Observers run on that
// goroutine and must not call Manager methods synchronously.
package link
