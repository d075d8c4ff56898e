package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"
)

// Version is the release version of esp32ota.
const Version = "0.1.0"

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: []cli.Flag{FormatFlag},
		Action: func(c *cli.Context) error {
			resp := VersionResponse{
				Version:   Version,
				Commit:    commit,
				GoVersion: runtime.Version(),
			}
			return render(c.App.Writer, c.String(FormatFlag.Name), resp, []row{
				{"Version", resp.Version},
				{"Commit", resp.Commit},
				{"Go", resp.GoVersion},
			})
		},
	}
}
