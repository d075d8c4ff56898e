package ota

import (
	"time"

	"github.com/moffa90/go-esp32ota/protocol"
)

// Config holds the uploader configuration.
type Config struct {
	// Observer receives transfer events (optional)
	Observer Observer

	// Logger is used for logging operations (optional)
	Logger Logger

	// PartSize is the number of image bytes per part
	// Default is 16384
	PartSize int

	// MTU is the maximum number of image bytes per piece
	// Default is 200
	MTU int

	// PieceDelay is the pause after every piece write
	// Default is 5ms
	PieceDelay time.Duration

	// ValidateImage checks the image header before an upload starts
	ValidateImage bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		PartSize:      protocol.DefaultPartSize,
		MTU:           protocol.DefaultMTU,
		PieceDelay:    5 * time.Millisecond,
		ValidateImage: true,
	}
}

// Option is a functional option for configuring the Uploader.
type Option func(*Config)

// WithObserver sets the observer for transfer events.
// A later call replaces the earlier observer.
func WithObserver(observer Observer) Option {
	return func(c *Config) {
		c.Observer = observer
	}
}

// WithLogger sets a logger for the uploader operations.
//
// Example:
//
//	up := ota.New(sender, ota.WithLogger(zaplog.Wrap(logger)))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithPartSize sets the part size. Values outside 1-65535 are ignored.
//
// Example:
//
//	up := ota.New(sender, ota.WithPartSize(8192))
func WithPartSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= protocol.MaxPartSize {
			c.PartSize = size
		}
	}
}

// WithMTU sets the maximum piece size. Values outside 1-65535 are ignored.
// The piece index is one byte, so Upload rejects a part size that needs
// more than 256 pieces at this MTU.
//
// Example:
//
//	up := ota.New(sender, ota.WithMTU(500))
func WithMTU(mtu int) Option {
	return func(c *Config) {
		if mtu > 0 && mtu <= protocol.MaxMTU {
			c.MTU = mtu
		}
	}
}

// WithPieceDelay sets the pause after every piece write. Zero disables it.
func WithPieceDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.PieceDelay = d
		}
	}
}

// WithImageValidation enables or disables the header check in Upload.
// Default is true.
func WithImageValidation(validate bool) Option {
	return func(c *Config) {
		c.ValidateImage = validate
	}
}
