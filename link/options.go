package link

import (
	"time"

	"github.com/moffa90/go-esp32ota/protocol"
)

// Config holds the manager configuration.
type Config struct {
	// Observer receives connection events (optional)
	Observer Observer

	// Logger is used for logging operations (optional)
	Logger Logger

	// Tap receives every frame sent and received (optional)
	Tap FrameTap

	// SettleDelay is the pause before each connect attempt
	// Default is 1s
	SettleDelay time.Duration

	// ReconnectDelay is the pause between a drop and the next attempt
	// Default is 1s
	ReconnectDelay time.Duration

	// MaxReconnectAttempts bounds reconnect attempts after one drop.
	// Zero means unbounded.
	MaxReconnectAttempts int

	// ServiceUUID, RxCharUUID and TxCharUUID identify the OTA service
	ServiceUUID string
	RxCharUUID  string
	TxCharUUID  string
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		SettleDelay:    time.Second,
		ReconnectDelay: time.Second,
		ServiceUUID:    protocol.ServiceUUID,
		RxCharUUID:     protocol.RxCharUUID,
		TxCharUUID:     protocol.TxCharUUID,
	}
}

// Option is a functional option for configuring the Manager.
type Option func(*Config)

// WithObserver sets the observer for connection events.
// A later call replaces the earlier observer.
func WithObserver(observer Observer) Option {
	return func(c *Config) {
		c.Observer = observer
	}
}

// WithLogger sets a logger for the manager operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTap sets a recorder for every frame crossing the link.
//
// Example:
//
//	w, _ := capture.Create("session.otacap")
//	mgr := link.NewManager(transport, link.WithTap(w))
func WithTap(tap FrameTap) Option {
	return func(c *Config) {
		c.Tap = tap
	}
}

// WithSettleDelay sets the pause before each connect attempt.
//
// Example:
//
//	mgr := link.NewManager(transport, link.WithSettleDelay(500*time.Millisecond))
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleDelay = d
		}
	}
}

// WithReconnectDelay sets the pause between an unsolicited drop and the
// reconnect attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.ReconnectDelay = d
		}
	}
}

// WithMaxReconnectAttempts bounds the reconnect attempts after a drop.
// Zero (the default) retries until Disconnect is called.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxReconnectAttempts = n
		}
	}
}

// WithUUIDs overrides the OTA service and characteristic UUIDs.
// Empty values keep the defaults.
func WithUUIDs(service, rx, tx string) Option {
	return func(c *Config) {
		if service != "" {
			c.ServiceUUID = service
		}
		if rx != "" {
			c.RxCharUUID = rx
		}
		if tx != "" {
			c.TxCharUUID = tx
		}
	}
}
