package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"
	"tinygo.org/x/bluetooth"

	"github.com/moffa90/go-esp32ota/capture"
	"github.com/moffa90/go-esp32ota/cli/config"
	"github.com/moffa90/go-esp32ota/cli/tui"
	"github.com/moffa90/go-esp32ota/firmware"
	"github.com/moffa90/go-esp32ota/link"
	"github.com/moffa90/go-esp32ota/link/ble"
	"github.com/moffa90/go-esp32ota/ota"
	"github.com/moffa90/go-esp32ota/protocol"
	"github.com/moffa90/go-esp32ota/zaplog"
)

// errLinkLost is returned when the link session ends before the device
// reports it is installing.
var errLinkLost = errors.New("link lost before the transfer completed")

// resultWait bounds how long to wait for result text after Installing.
const resultWait = 10 * time.Second

// UploadCommand returns the upload command.
func UploadCommand() *cli.Command {
	flags := append(CommonFlags(),
		&cli.StringFlag{
			Name:  "name",
			Usage: "Exact advertised device name (remembered for later runs)",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Advertised device name prefix",
		},
		&cli.BoolFlag{
			Name:  "no-remember",
			Usage: "Do not store the device name in the config file",
		},
	)
	flags = append(flags, transferFlags()...)

	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload an image to an ESP32 over BLE",
		ArgsUsage: "<image path or s3://bucket/key>",
		Flags:     flags,
		Action:    uploadAction,
	}
}

func uploadAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one image argument", exitConfigError)
	}
	location := c.Args().First()

	cfg, path, err := loadConfig(c)
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

	img, err := loadImage(ctx, cfg.S3, location)
	if err != nil {
		return err
	}

	opts := transferOptions{
		transport: ble.NewTransport(bluetooth.DefaultAdapter),
		filter: link.Filter{
			Name:       cfg.Device.Name,
			NamePrefix: cfg.Device.NamePrefix,
			Service:    protocol.ServiceUUID,
		},
		image: img,
		cfg:   cfg,
		log:   log,
	}
	if !c.Bool("no-remember") {
		opts.onConnect = func(name string) {
			if err := config.RememberDevice(path, name); err != nil {
				log.Error("failed to remember device", "path", path, "error", err)
			}
		}
	}

	res, err := runTransfer(ctx, cancel, c, opts, location)
	if err != nil {
		return cli.Exit(fmt.Sprintf("upload failed: %v", err), exitUploadFailed)
	}

	printSummary(c.App.Writer, res)
	return nil
}

// commandContext returns a context cancelled by SIGINT, SIGTERM or --timeout.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)
	if d := c.Duration("timeout"); d > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, d)
		inner := cancel
		cancel = func() {
			cancelTimeout()
			inner()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// observer receives both link and transfer events.
type observer interface {
	link.Observer
	ota.Observer
}

type transferOptions struct {
	transport link.Transport
	filter    link.Filter
	image     *firmware.Image
	cfg       *config.Config
	log       *zaplog.Logger
	display   observer
	onConnect func(name string)
}

type transferResult struct {
	Device   string
	Result   string
	Stats    ota.Stats
	Duration time.Duration
}

// runTransfer runs the transfer with either the TUI or line output.
func runTransfer(ctx context.Context, cancel context.CancelFunc, c *cli.Context, opts transferOptions, location string) (transferResult, error) {
	if !c.Bool(TUIFlag.Name) {
		opts.display = &textReporter{w: c.App.Writer}
		return transfer(ctx, opts)
	}

	p := tea.NewProgram(tui.NewUploadModel(location, opts.image.Len(), cancel), tea.WithContext(ctx))
	rep := tui.NewReporter(p)
	opts.display = rep

	type outcome struct {
		res transferResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := transfer(ctx, opts)
		rep.Done(err)
		done <- outcome{res, err}
	}()

	_, runErr := tui.RunUpload(p)
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		cancel()
	}

	out := <-done
	return out.res, out.err
}

// transfer connects, uploads the image and waits until the device reports
// it is installing.
func transfer(ctx context.Context, opts transferOptions) (transferResult, error) {
	var res transferResult
	cfg := opts.cfg
	tr := newTracker(opts.display)

	linkOpts := []link.Option{
		link.WithObserver(tr),
		link.WithLogger(opts.log.Named("link")),
		link.WithSettleDelay(cfg.Link.SettleDelay.Duration),
		link.WithReconnectDelay(cfg.Link.ReconnectDelay.Duration),
		link.WithMaxReconnectAttempts(cfg.Link.MaxReconnectAttempts),
	}

	if cfg.CapturePath != "" {
		w, err := capture.Create(cfg.CapturePath, opts.filter.Name)
		if err != nil {
			return res, err
		}
		defer func() {
			if err := w.Close(); err != nil {
				opts.log.Error("capture incomplete", "path", cfg.CapturePath, "error", err)
			}
		}()
		linkOpts = append(linkOpts, link.WithTap(w))
		opts.log.Info("capturing frames", "path", cfg.CapturePath, "session", w.SessionID().String())
	}

	mgr := link.NewManager(opts.transport, linkOpts...)
	defer func() { _ = mgr.Close() }()

	up := ota.New(mgr,
		ota.WithObserver(tr),
		ota.WithLogger(opts.log.Named("ota")),
		ota.WithPartSize(cfg.Transfer.PartSize),
		ota.WithMTU(cfg.Transfer.MTU),
		ota.WithPieceDelay(cfg.Transfer.PieceDelay.Duration),
	)
	mgr.Attach(up)

	start := time.Now()
	if err := mgr.Connect(ctx, opts.filter); err != nil {
		return res, err
	}
	res.Device = mgr.DeviceName()
	if opts.onConnect != nil {
		opts.onConnect(res.Device)
	}

	if err := mgr.Upload(ctx, opts.image.Bytes()); err != nil {
		return res, err
	}

	select {
	case <-tr.finished:
	case <-tr.lost:
		return res, errLinkLost
	case <-ctx.Done():
		return res, ctx.Err()
	}

	timer := time.NewTimer(resultWait)
	defer timer.Stop()
	select {
	case res.Result = <-tr.result:
	case <-timer.C:
		opts.log.Info("no result text from device")
	case <-ctx.Done():
	}

	res.Stats = up.Stats()
	res.Duration = time.Since(start)
	return res, nil
}

// tracker forwards events to the display and signals the milestones the
// command waits for.
type tracker struct {
	display observer

	result   chan string
	finished chan struct{}
	lost     chan struct{}

	finishOnce sync.Once
	lostOnce   sync.Once
}

func newTracker(display observer) *tracker {
	return &tracker{
		display:  display,
		result:   make(chan string, 1),
		finished: make(chan struct{}),
		lost:     make(chan struct{}),
	}
}

func (t *tracker) OnConnecting() { t.display.OnConnecting() }

func (t *tracker) OnConnect(deviceName string) { t.display.OnConnect(deviceName) }

func (t *tracker) OnDisconnect() {
	t.display.OnDisconnect()
	t.lostOnce.Do(func() { close(t.lost) })
}

func (t *tracker) OnMessage(frame protocol.Frame) { t.display.OnMessage(frame) }

func (t *tracker) OnUploadProgress(p ota.Progress) { t.display.OnUploadProgress(p) }

func (t *tracker) OnUploadFinished() {
	t.display.OnUploadFinished()
	t.finishOnce.Do(func() { close(t.finished) })
}

func (t *tracker) OnResult(text string) {
	t.display.OnResult(text)
	select {
	case t.result <- text:
	default:
	}
}

// textReporter prints one line per event.
type textReporter struct {
	w io.Writer
}

func (r *textReporter) OnConnecting() {
	fmt.Fprintln(r.w, "Connecting...")
}

func (r *textReporter) OnConnect(deviceName string) {
	fmt.Fprintf(r.w, "Connected to %s\n", deviceName)
}

func (r *textReporter) OnDisconnect() {
	fmt.Fprintln(r.w, "Disconnected")
}

func (r *textReporter) OnMessage(protocol.Frame) {}

func (r *textReporter) OnUploadProgress(p ota.Progress) {
	fmt.Fprintf(r.w, "Part %d/%d  %3d%%  %s\n", p.Part+1, p.TotalParts, p.Percentage, tui.FormatBytes(p.BytesSent))
}

func (r *textReporter) OnUploadFinished() {
	fmt.Fprintln(r.w, "Upload complete, device is installing")
}

func (r *textReporter) OnResult(text string) {
	fmt.Fprintf(r.w, "Device: %s\n", text)
}

func printSummary(w io.Writer, res transferResult) {
	s := res.Stats
	fmt.Fprintf(w, "\n%s: %s sent in %s (%d parts, %d resent, %d reconnects)\n",
		res.Device, tui.FormatBytes(int(s.BytesSent)), res.Duration.Round(time.Millisecond),
		s.PartsSent, s.PartsResent, s.Resumes)
	if res.Result != "" {
		fmt.Fprintf(w, "Result: %s\n", res.Result)
	}
}
