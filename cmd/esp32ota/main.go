// Package main provides the esp32ota CLI entrypoint.
//
// Usage:
//
//	esp32ota <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: link or upload failure
//   - 2: invalid image
//   - 3: configuration error
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/moffa90/go-esp32ota/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "esp32ota",
		Usage:          "Upload firmware to an ESP32 over BLE",
		Version:        fmt.Sprintf("%s (commit: %s)", cmd.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.UploadCommand(),
			cmd.InfoCommand(),
			cmd.SimulateCommand(),
			cmd.DumpCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit, including wrapped ones.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
