package cmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/urfave/cli/v2"

	"github.com/moffa90/go-esp32ota/firmware"
	"github.com/moffa90/go-esp32ota/link"
	"github.com/moffa90/go-esp32ota/protocol"
	"github.com/moffa90/go-esp32ota/simulator"
)

// SimulateCommand returns the simulate command. It runs a complete upload
// against an in-memory device and checks the device received the image.
func SimulateCommand() *cli.Command {
	flags := append(CommonFlags(),
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Transfer mode the device announces: normal, fast",
			Value: "normal",
		},
		&cli.IntFlag{
			Name:  "drop-at-part",
			Usage: "Drop the link once on the first piece of this part (-1 = never)",
			Value: -1,
		},
		&cli.IntFlag{
			Name:  "refuse-connects",
			Usage: "Number of reconnect attempts the device refuses after the drop",
		},
		&cli.IntFlag{
			Name:  "size",
			Usage: "Size of the generated image when no image is given",
			Value: 64 * 1024,
		},
		&cli.StringFlag{
			Name:  "result",
			Usage: "Result text the device sends after installing",
			Value: "OTA Success",
		},
	)
	flags = append(flags, transferFlags()...)

	return &cli.Command{
		Name:      "simulate",
		Usage:     "Upload to a simulated device",
		ArgsUsage: "[image path or s3://bucket/key]",
		Flags:     flags,
		Action:    simulateAction,
	}
}

func simulateAction(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return configError(err)
	}

	mode, err := parseMode(c.String("mode"))
	if err != nil {
		return configError(err)
	}

	log, closeLog, err := newLogger(c, cfg, c.Bool(TUIFlag.Name))
	if err != nil {
		return configError(err)
	}
	defer closeLog()

	ctx, cancel := commandContext(c)
	defer cancel()

	var (
		img      *firmware.Image
		location string
	)
	if c.NArg() > 0 {
		location = c.Args().First()
		if img, err = loadImage(ctx, cfg.S3, location); err != nil {
			return err
		}
	} else {
		location = "generated"
		if img, err = syntheticImage(c.Int("size")); err != nil {
			return cli.Exit(err.Error(), exitInvalidImage)
		}
	}

	devCfg := simulator.DefaultConfig()
	devCfg.Mode = mode
	devCfg.DropAtPart = c.Int("drop-at-part")
	devCfg.RefuseAfterDrop = c.Int("refuse-connects")
	devCfg.Result = c.String("result")
	if cfg.Device.Name != "" {
		devCfg.Name = cfg.Device.Name
	}
	dev := simulator.NewDevice(devCfg)
	defer dev.Close()

	opts := transferOptions{
		transport: simulator.NewTransport(dev),
		filter:    link.Filter{Name: devCfg.Name},
		image:     img,
		cfg:       cfg,
		log:       log,
	}

	res, err := runTransfer(ctx, cancel, c, opts, location)
	if err != nil {
		return cli.Exit(fmt.Sprintf("simulated upload failed: %v", err), exitUploadFailed)
	}
	printSummary(c.App.Writer, res)

	if !dev.Installed() || !bytes.Equal(dev.Image(), img.Bytes()) {
		return cli.Exit("simulated device image does not match the source image", exitUploadFailed)
	}
	fmt.Fprintf(c.App.Writer, "Verified %d bytes on %s (%d connects)\n", img.Len(), devCfg.Name, dev.Connects())
	return nil
}

func parseMode(s string) (protocol.Mode, error) {
	switch s {
	case "normal", "":
		return protocol.ModeNormal, nil
	case "fast":
		return protocol.ModeFast, nil
	default:
		return 0, fmt.Errorf("invalid mode %q (must be normal or fast)", s)
	}
}

// syntheticImage builds a valid image of size bytes: a DIO, 4MB, 40MHz
// header with one segment, followed by random content.
func syntheticImage(size int) (*firmware.Image, error) {
	if size < firmware.MinImageSize {
		return nil, fmt.Errorf("image size %d is below the minimum of %d bytes", size, firmware.MinImageSize)
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rand.IntN(256))
	}
	data[0] = firmware.ImageMagic
	data[firmware.OffsetSegmentCount] = 1
	data[firmware.OffsetFlashMode] = byte(firmware.FlashModeDIO)
	data[firmware.OffsetFlashConfig] = byte(firmware.FlashSize4MB)<<4 | byte(firmware.FlashFreq40MHz)
	binary.LittleEndian.PutUint32(data[firmware.OffsetEntryPoint:], 0x40080000)

	return firmware.New(data)
}
