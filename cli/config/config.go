// Package config handles the esp32ota configuration file.
//
// Values are resolved in three layers, later layers winning:
//
//  1. the YAML file, with ${VAR} and ${VAR:-default} expanded
//  2. ESP32OTA_* environment variables
//  3. command line flags (applied by package cmd)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moffa90/go-esp32ota/protocol"
)

// EnvPrefix is the prefix of environment overrides, e.g. ESP32OTA_TRANSFER_MTU.
const EnvPrefix = "ESP32OTA"

// Config represents an esp32ota.yaml configuration file.
// All values are optional; Default supplies the rest.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Transfer TransferConfig `yaml:"transfer"`
	Link     LinkConfig     `yaml:"link"`
	Log      LogConfig      `yaml:"log"`
	S3       S3Config       `yaml:"s3"`

	// CapturePath, when set, records every frame of an upload to this file
	CapturePath string `yaml:"capture_path,omitempty" split_words:"true"`
}

// DeviceConfig selects which advertising device to connect to.
type DeviceConfig struct {
	// Name is the exact advertised name. The upload command stores the
	// name of the last device it connected to here.
	Name       string `yaml:"name,omitempty" split_words:"true"`
	NamePrefix string `yaml:"name_prefix,omitempty" split_words:"true"`
}

// TransferConfig holds the chunking and pacing parameters.
type TransferConfig struct {
	MTU        int      `yaml:"mtu,omitempty" split_words:"true"`
	PartSize   int      `yaml:"part_size,omitempty" split_words:"true"`
	PieceDelay Duration `yaml:"piece_delay,omitempty" split_words:"true"`
}

// LinkConfig holds the connection and reconnect policy.
type LinkConfig struct {
	SettleDelay          Duration `yaml:"settle_delay,omitempty" split_words:"true"`
	ReconnectDelay       Duration `yaml:"reconnect_delay,omitempty" split_words:"true"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts,omitempty" split_words:"true"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" split_words:"true"`
	Format string `yaml:"format,omitempty" split_words:"true"`
}

// S3Config configures s3:// image sources.
type S3Config struct {
	Region       string `yaml:"region,omitempty" split_words:"true"`
	Endpoint     string `yaml:"endpoint,omitempty" split_words:"true"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty" split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transfer: TransferConfig{
			MTU:        protocol.DefaultMTU,
			PartSize:   protocol.DefaultPartSize,
			PieceDelay: Duration{5 * time.Millisecond},
		},
		Link: LinkConfig{
			SettleDelay:    Duration{time.Second},
			ReconnectDelay: Duration{time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate user config directory: %w", err)
	}
	return filepath.Join(dir, "esp32ota", "config.yaml"), nil
}

// Validate checks values that would otherwise fail deep inside a transfer.
func (c *Config) Validate() error {
	if c.Transfer.MTU <= 0 || c.Transfer.MTU > protocol.MaxMTU {
		return fmt.Errorf("transfer.mtu %d out of range: valid range is 1-%d", c.Transfer.MTU, protocol.MaxMTU)
	}
	if c.Transfer.PartSize <= 0 || c.Transfer.PartSize > protocol.MaxPartSize {
		return fmt.Errorf("transfer.part_size %d out of range: valid range is 1-%d", c.Transfer.PartSize, protocol.MaxPartSize)
	}
	if c.Transfer.PieceDelay.Duration < 0 {
		return fmt.Errorf("transfer.piece_delay must not be negative, got %s", c.Transfer.PieceDelay)
	}
	if c.Link.SettleDelay.Duration < 0 || c.Link.ReconnectDelay.Duration < 0 {
		return fmt.Errorf("link delays must not be negative")
	}
	if c.Link.MaxReconnectAttempts < 0 {
		return fmt.Errorf("link.max_reconnect_attempts must not be negative, got %d", c.Link.MaxReconnectAttempts)
	}
	return nil
}

// Duration wraps time.Duration for YAML and environment string parsing (e.g. "10s", "5ms").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	d.Duration = parsed
	return nil
}
