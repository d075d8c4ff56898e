package link

// Observer receives connection events. Methods run on the manager's event
// loop; they must return quickly and must not call Manager methods
// synchronously.
type Observer interface {
	// OnConnecting is called at the start of every connect attempt
	OnConnecting()

	// OnConnect is called when the device is connected and subscribed
	OnConnect(deviceName string)

	// OnDisconnect is called when the session ends: user disconnect, failed
	// initial connect or exhausted reconnect attempts
	OnDisconnect()
}

// Callbacks adapts plain functions to the Observer interface.
// Nil fields are skipped.
type Callbacks struct {
	Connecting   func()
	Connect      func(deviceName string)
	Disconnected func()
}

func (c Callbacks) OnConnecting() {
	if c.Connecting != nil {
		c.Connecting()
	}
}

func (c Callbacks) OnConnect(deviceName string) {
	if c.Connect != nil {
		c.Connect(deviceName)
	}
}

func (c Callbacks) OnDisconnect() {
	if c.Disconnected != nil {
		c.Disconnected()
	}
}

// FrameTap receives a copy of every frame crossing the link.
// See package capture for a recorder.
type FrameTap interface {
	// Outbound is called before a frame is written to the device
	Outbound(frame []byte)

	// Inbound is called for every notification from the device
	Inbound(frame []byte)
}

// Logger is an optional logging interface that can be provided to the manager.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
