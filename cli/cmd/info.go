package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/moffa90/go-esp32ota/cli/config"
	"github.com/moffa90/go-esp32ota/firmware"
	"github.com/moffa90/go-esp32ota/source"
)

// ImageInfo is the response for the info command.
type ImageInfo struct {
	Location     string   `json:"location" yaml:"location"`
	Size         int      `json:"size" yaml:"size"`
	FlashMode    string   `json:"flash_mode" yaml:"flash_mode"`
	FlashSize    string   `json:"flash_size" yaml:"flash_size"`
	FlashFreq    string   `json:"flash_freq" yaml:"flash_freq"`
	SegmentCount int      `json:"segment_count" yaml:"segment_count"`
	EntryPoint   string   `json:"entry_point" yaml:"entry_point"`
	App          *AppInfo `json:"app,omitempty" yaml:"app,omitempty"`
}

// AppInfo is the application descriptor part of ImageInfo.
type AppInfo struct {
	Project    string `json:"project" yaml:"project"`
	Version    string `json:"version" yaml:"version"`
	SemVer     string `json:"semver,omitempty" yaml:"semver,omitempty"`
	IDFVersion string `json:"idf_version" yaml:"idf_version"`
	Built      string `json:"built" yaml:"built"`
}

// InfoCommand returns the info command.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Validate an image and show its header",
		ArgsUsage: "<image path or s3://bucket/key>",
		Flags:     append(CommonFlags(), FormatFlag),
		Action:    infoAction,
	}
}

func infoAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one image argument", exitConfigError)
	}
	location := c.Args().First()

	cfg, _, err := loadConfig(c)
	if err != nil {
		return configError(err)
	}

	img, err := loadImage(c.Context, cfg.S3, location)
	if err != nil {
		return err
	}

	info := describeImage(location, img)
	return render(c.App.Writer, c.String(FormatFlag.Name), info, info.rows())
}

// loadImage reads and validates an image, mapping failures to exit codes.
func loadImage(ctx context.Context, s3 config.S3Config, location string) (*firmware.Image, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	loader := source.NewLoader(source.WithS3Config(source.S3Config{
		Region:       s3.Region,
		Endpoint:     s3.Endpoint,
		UsePathStyle: s3.UsePathStyle,
	}))

	img, err := loader.Load(ctx, location)
	switch {
	case err == nil:
		return img, nil
	case firmware.IsValidationError(err), errors.Is(err, source.ErrTooLarge):
		return nil, cli.Exit(fmt.Sprintf("invalid image %s: %v", location, err), exitInvalidImage)
	case errors.Is(err, os.ErrNotExist):
		return nil, cli.Exit(fmt.Sprintf("image not found: %s", location), exitInvalidImage)
	default:
		return nil, cli.Exit(fmt.Sprintf("cannot load image %s: %v", location, err), exitUploadFailed)
	}
}

func describeImage(location string, img *firmware.Image) ImageInfo {
	meta := img.Metadata()
	info := ImageInfo{
		Location:     location,
		Size:         img.Len(),
		FlashMode:    meta.FlashMode.String(),
		FlashSize:    meta.FlashSize.String(),
		FlashFreq:    meta.FlashFreq.String(),
		SegmentCount: meta.SegmentCount,
		EntryPoint:   fmt.Sprintf("0x%08x", meta.EntryPoint),
	}

	if app := meta.App; app != nil {
		info.App = &AppInfo{
			Project:    app.ProjectName,
			Version:    app.Version,
			IDFVersion: app.IDFVersion,
			Built:      app.BuildDate + " " + app.BuildTime,
		}
		if app.SemVer != nil {
			info.App.SemVer = app.SemVer.String()
		}
	}
	return info
}

func (i ImageInfo) rows() []row {
	rows := []row{
		{"Image", i.Location},
		{"Size", fmt.Sprintf("%d bytes", i.Size)},
		{"Flash mode", i.FlashMode},
		{"Flash size", i.FlashSize},
		{"Flash freq", i.FlashFreq},
		{"Segments", fmt.Sprint(i.SegmentCount)},
		{"Entry point", i.EntryPoint},
	}
	if i.App != nil {
		rows = append(rows,
			row{"Project", i.App.Project},
			row{"Version", i.App.Version},
			row{"ESP-IDF", i.App.IDFVersion},
			row{"Built", i.App.Built},
		)
	}
	return rows
}
