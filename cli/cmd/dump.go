package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/moffa90/go-esp32ota/capture"
	"github.com/moffa90/go-esp32ota/protocol"
)

// CaptureDump is the response for the dump command.
type CaptureDump struct {
	Session string        `json:"session" yaml:"session"`
	Device  string        `json:"device" yaml:"device"`
	Started time.Time     `json:"started" yaml:"started"`
	Frames  []FrameRecord `json:"frames" yaml:"frames"`
}

// FrameRecord is one captured frame.
type FrameRecord struct {
	Seq       uint64        `json:"seq" yaml:"seq"`
	Offset    time.Duration `json:"offset_ns" yaml:"offset"`
	Direction string        `json:"dir" yaml:"dir"`
	Command   string        `json:"command" yaml:"command"`
	Length    int           `json:"length" yaml:"length"`
	Hex       string        `json:"hex" yaml:"hex"`
}

// maxHexBytes bounds the hex shown per frame in table output.
const maxHexBytes = 24

// DumpCommand returns the dump command.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print the frames recorded by upload --capture",
		ArgsUsage: "<capture file>",
		Flags: []cli.Flag{
			FormatFlag,
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Only show frames in one direction: in, out",
			},
		},
		Action: dumpAction,
	}
}

func dumpAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one capture file", exitConfigError)
	}

	dir := capture.Direction(c.String("dir"))
	if dir != "" && dir != capture.Inbound && dir != capture.Outbound {
		return cli.Exit(fmt.Sprintf("invalid --dir %q (must be in or out)", dir), exitConfigError)
	}

	r, err := capture.Open(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open capture: %v", err), exitUploadFailed)
	}
	defer func() { _ = r.Close() }()

	dump, readErr := readCapture(r, dir)

	format := c.String(FormatFlag.Name)
	if format == formatTable || format == "" {
		writeDumpTable(c.App.Writer, dump)
	} else if err := render(c.App.Writer, format, dump, nil); err != nil {
		return err
	}

	if readErr != nil {
		return cli.Exit(fmt.Sprintf("capture truncated after %d frames: %v", len(dump.Frames), readErr), exitUploadFailed)
	}
	return nil
}

// readCapture reads every record. A decoding error stops the read and is
// returned with the frames read so far.
func readCapture(r *capture.Reader, dir capture.Direction) (CaptureDump, error) {
	h := r.Header()
	dump := CaptureDump{
		Session: h.Session,
		Device:  h.Device,
		Started: h.Started,
	}

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return dump, nil
		}
		if err != nil {
			return dump, err
		}
		if dir != "" && rec.Direction != dir {
			continue
		}

		var cmd string
		if f, err := protocol.Decode(rec.Frame); err == nil {
			cmd = protocol.CommandName(f.Command)
		}
		dump.Frames = append(dump.Frames, FrameRecord{
			Seq:       rec.Seq,
			Offset:    rec.Time.Sub(h.Started),
			Direction: string(rec.Direction),
			Command:   cmd,
			Length:    len(rec.Frame),
			Hex:       fmt.Sprintf("% x", rec.Frame),
		})
	}
}

func writeDumpTable(w io.Writer, d CaptureDump) {
	fmt.Fprintf(w, "session %s  device %q  started %s\n\n", d.Session, d.Device, d.Started.Format(time.RFC3339))
	for _, f := range d.Frames {
		arrow := "<"
		if f.Direction == string(capture.Outbound) {
			arrow = ">"
		}
		hex := f.Hex
		if limit := maxHexBytes*3 - 1; len(hex) > limit {
			hex = hex[:limit] + " ..."
		}
		fmt.Fprintf(w, "%6d %10s %s %-13s %5d  %s\n",
			f.Seq, f.Offset.Round(time.Microsecond), arrow, f.Command, f.Length, hex)
	}
}
