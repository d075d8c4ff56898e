// Package cmd provides the commands of the esp32ota binary.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/moffa90/go-esp32ota/cli/config"
	"github.com/moffa90/go-esp32ota/zaplog"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitUploadFailed = 1
	exitInvalidImage = 2
	exitConfigError  = 3
)

// Shared flags.
var (
	// ConfigFlag points at the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: user config dir/esp32ota/config.yaml)",
		EnvVars: []string{"ESP32OTA_CONFIG"},
	}

	// LogLevelFlag overrides log.level.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}

	// LogFormatFlag overrides log.format.
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format: console, json",
	}

	// LogFileFlag sends logs to a file instead of stderr.
	LogFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to this file instead of stderr",
	}

	// FormatFlag selects output format: table, json, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: table, json, yaml",
		Value:   "table",
	}

	// TUIFlag enables the Bubble Tea progress view.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show an interactive progress view",
	}
)

// CommonFlags returns the flags shared by commands that load the config.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFormatFlag,
		LogFileFlag,
	}
}

// transferFlags override the transfer and link sections of the config.
func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "mtu",
			Usage: "Largest piece payload in bytes",
		},
		&cli.IntFlag{
			Name:  "part-size",
			Usage: "Part size in bytes",
		},
		&cli.DurationFlag{
			Name:  "piece-delay",
			Usage: "Pause between pieces",
		},
		&cli.DurationFlag{
			Name:  "settle-delay",
			Usage: "Wait before each connect",
		},
		&cli.DurationFlag{
			Name:  "reconnect-delay",
			Usage: "Wait before reconnecting after a drop",
		},
		&cli.IntFlag{
			Name:  "max-reconnects",
			Usage: "Give up after this many reconnect attempts (0 = unbounded)",
		},
		&cli.StringFlag{
			Name:  "capture",
			Usage: "Record every frame to this file",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Abort the upload after this long (0 = no limit)",
		},
		TUIFlag,
	}
}

// loadConfig resolves the config file, environment and flag layers.
// An explicit --config must exist; the default location is optional.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	path := c.String(ConfigFlag.Name)
	optional := false
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, "", err
		}
		path, optional = p, true
	}

	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, "", err
	}

	if v := c.String(LogLevelFlag.Name); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String(LogFormatFlag.Name); v != "" {
		cfg.Log.Format = v
	}
	if c.IsSet("mtu") {
		cfg.Transfer.MTU = c.Int("mtu")
	}
	if c.IsSet("part-size") {
		cfg.Transfer.PartSize = c.Int("part-size")
	}
	if c.IsSet("piece-delay") {
		cfg.Transfer.PieceDelay.Duration = c.Duration("piece-delay")
	}
	if c.IsSet("settle-delay") {
		cfg.Link.SettleDelay.Duration = c.Duration("settle-delay")
	}
	if c.IsSet("reconnect-delay") {
		cfg.Link.ReconnectDelay.Duration = c.Duration("reconnect-delay")
	}
	if c.IsSet("max-reconnects") {
		cfg.Link.MaxReconnectAttempts = c.Int("max-reconnects")
	}
	if c.IsSet("capture") {
		cfg.CapturePath = c.String("capture")
	}
	if c.IsSet("name") {
		cfg.Device.Name = c.String("name")
	}
	if c.IsSet("prefix") {
		cfg.Device.NamePrefix = c.String("prefix")
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newLogger builds the logger for a command. quiet discards logs that would
// otherwise go to stderr, for commands that own the terminal.
func newLogger(c *cli.Context, cfg *config.Config, quiet bool) (*zaplog.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}

	switch path := c.String(LogFileFlag.Name); {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	case quiet:
		out = io.Discard
	}

	log, err := zaplog.New(zaplog.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return log, func() {
		_ = log.Sync()
		closeFn()
	}, nil
}

func configError(err error) error {
	return cli.Exit(fmt.Sprintf("configuration error: %v", err), exitConfigError)
}
