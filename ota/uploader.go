package ota

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-esp32ota/firmware"
	"github.com/moffa90/go-esp32ota/protocol"
)

// Sender writes one encoded frame to the device.
// It is implemented by link.Manager and by test doubles.
type Sender interface {
	SendFrame(ctx context.Context, frame []byte) error
}

// Uploader drives one firmware transfer at a time: it sends the init
// sequence, reacts to device frames and sends parts on demand.
//
// Uploader is not safe for concurrent use. All methods except Stats must be
// called from a single goroutine; link.Manager does this from its event loop.
type Uploader struct {
	sender  Sender
	config  Config
	state   State
	session *Session
	stats   collector
}

// New creates a new Uploader writing frames to sender.
//
// Example:
//
//	up := ota.New(sender,
//	    ota.WithMTU(200),
//	    ota.WithObserver(ota.Callbacks{Progress: progressFunc}),
//	)
func New(sender Sender, opts ...Option) *Uploader {
	if sender == nil {
		panic("sender cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Uploader{
		sender: sender,
		config: cfg,
		state:  StateIdle,
	}
}

// State returns the current transfer state.
func (u *Uploader) State() State {
	return u.state
}

// InProgress reports whether a session is active, suspended or not.
func (u *Uploader) InProgress() bool {
	return u.session != nil
}

// Session returns a copy of the active session.
func (u *Uploader) Session() (Session, bool) {
	if u.session == nil {
		return Session{}, false
	}
	return *u.session, true
}

// Stats returns a snapshot of the uploader counters. Safe for concurrent use.
func (u *Uploader) Stats() Stats {
	return u.stats.snapshot()
}

// Upload starts a transfer of image:
//  1. Reject the call if a session is active
//  2. Validate the image header (unless disabled with WithImageValidation)
//  3. Split the image into parts and pieces
//  4. Send Delete Image, File Length and OTA Parameters
//
// The image is copied; the caller may reuse the slice. The rest of the
// transfer is driven by frames passed to HandleFrame.
func (u *Uploader) Upload(ctx context.Context, image []byte) error {
	if u.session != nil {
		return &StateError{Op: "upload", State: u.state, Err: ErrUploadInProgress}
	}
	if len(image) == 0 {
		return ErrEmptyImage
	}

	if u.config.ValidateImage {
		if _, err := firmware.Validate(image); err != nil {
			return fmt.Errorf("validate image: %w", err)
		}
	}

	layout, err := protocol.NewLayout(len(image), u.config.PartSize, u.config.MTU)
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}

	u.session = &Session{
		ID:        uuid.New(),
		Layout:    layout,
		StartedAt: time.Now(),
		image:     bytes.Clone(image),
		sent:      make([]bool, layout.PartCount()),
	}
	u.state = StateInitializing
	u.stats.incUploadStarted()

	u.logInfo("upload started",
		"session", u.session.ID.String(),
		"bytes", layout.FileLen(),
		"parts", layout.PartCount(),
		"mtu", layout.MTU(),
	)

	return u.sendInit(ctx)
}

// HandleFrame processes one frame received from the device.
//
// The returned error is non-nil only when a send failed; the session is then
// suspended (see ErrSuspended). Unknown or malformed frames are logged, counted
// and ignored. Every frame is passed to Observer.OnMessage afterwards.
func (u *Uploader) HandleFrame(ctx context.Context, frame protocol.Frame) error {
	u.stats.incFrameReceived()

	var err error
	switch frame.Command {
	case protocol.CmdModeAnnouncement:
		err = u.handleMode(ctx, frame.Payload)
	case protocol.CmdRequestPart:
		err = u.handlePartRequest(ctx, frame.Payload)
	case protocol.CmdInstalling:
		u.handleInstalling()
	case protocol.CmdResultText:
		text := protocol.ParseResultText(frame.Payload)
		u.logInfo("ota result", "text", text)
		if u.config.Observer != nil {
			u.config.Observer.OnResult(text)
		}
	default:
		u.violation(frame.Command, "unknown command")
	}

	if u.config.Observer != nil {
		u.config.Observer.OnMessage(frame)
	}

	return err
}

// Suspend marks the active session as interrupted by a link drop.
// The current part is kept so Resume can continue from it.
func (u *Uploader) Suspend() {
	s := u.session
	if s == nil || s.Suspended {
		return
	}

	s.Suspended = true
	u.stats.incSuspension()
	u.logInfo("upload suspended", "session", s.ID.String(), "part", s.CurrentPart)
}

// Resume continues a session after the link is back.
// If the device never announced a mode the init sequence is sent again.
// Otherwise the current part is re-sent, followed in fast mode by every
// remaining part. It is a no-op without an active session.
func (u *Uploader) Resume(ctx context.Context) error {
	s := u.session
	if s == nil {
		return nil
	}

	s.Suspended = false
	u.stats.incResume()
	u.logInfo("upload resumed",
		"session", s.ID.String(),
		"part", s.CurrentPart,
		"mode_known", s.ModeKnown,
	)

	if !s.ModeKnown {
		u.state = StateInitializing
		return u.sendInit(ctx)
	}

	if s.Mode == protocol.ModeFast {
		return u.sendParts(ctx, s.CurrentPart)
	}
	return u.sendPart(ctx, s.CurrentPart)
}

// Abort ends the active session without waiting for the device.
// The state passes through StateFailed and settles on StateIdle.
func (u *Uploader) Abort(reason string) {
	s := u.session
	if s == nil {
		return
	}

	u.state = StateFailed
	u.stats.incUploadAborted()
	u.logError("upload aborted",
		"session", s.ID.String(),
		"part", s.CurrentPart,
		"reason", reason,
	)

	u.session = nil
	u.state = StateIdle
}

func (u *Uploader) handleMode(ctx context.Context, payload []byte) error {
	mode, err := protocol.ParseModeAnnouncement(payload)
	if err != nil {
		u.violation(protocol.CmdModeAnnouncement, err.Error())
		return nil
	}

	s := u.session
	if s == nil {
		u.violation(protocol.CmdModeAnnouncement, "no active upload")
		return nil
	}
	if mode != protocol.ModeNormal && mode != protocol.ModeFast {
		u.violation(protocol.CmdModeAnnouncement, fmt.Sprintf("unsupported %s", mode))
		return nil
	}

	s.Mode = mode
	s.ModeKnown = true
	u.state = StateUploading
	u.logDebug("transfer mode", "mode", mode.String())

	if mode == protocol.ModeFast {
		return u.sendParts(ctx, 0)
	}
	return u.sendPart(ctx, 0)
}

func (u *Uploader) handlePartRequest(ctx context.Context, payload []byte) error {
	part, err := protocol.ParsePartRequest(payload)
	if err != nil {
		u.violation(protocol.CmdRequestPart, err.Error())
		return nil
	}

	s := u.session
	if s == nil {
		u.violation(protocol.CmdRequestPart, "no active upload")
		return nil
	}
	if part >= s.PartCount() {
		u.violation(protocol.CmdRequestPart,
			fmt.Sprintf("part %d out of range: valid range is 0-%d", part, s.PartCount()-1))
		return nil
	}

	u.state = StateUploading
	return u.sendPart(ctx, part)
}

func (u *Uploader) handleInstalling() {
	s := u.session
	if s == nil {
		u.violation(protocol.CmdInstalling, "no active upload")
		return
	}

	u.state = StateCompleting
	elapsed := time.Since(s.StartedAt)
	u.stats.incUploadCompleted(elapsed)
	u.logInfo("upload complete, device is installing",
		"session", s.ID.String(),
		"bytes", s.FileLen(),
		"elapsed", elapsed.String(),
	)

	u.session = nil
	if u.config.Observer != nil {
		u.config.Observer.OnUploadFinished()
	}
	u.state = StateIdle
}

// sendInit sends Delete Image, File Length and OTA Parameters.
func (u *Uploader) sendInit(ctx context.Context) error {
	s := u.session

	fileLen, err := protocol.BuildFileLengthCmd(s.FileLen())
	if err != nil {
		return err
	}
	params, err := protocol.BuildOTAParamsCmd(s.PartCount(), s.Layout.MTU())
	if err != nil {
		return err
	}

	for _, frame := range [][]byte{protocol.BuildDeleteImageCmd(), fileLen, params} {
		if err := u.send(ctx, frame); err != nil {
			return u.suspendOnError("init", err)
		}
	}

	return nil
}

// sendParts sends every part from the given one to the last, back to back.
func (u *Uploader) sendParts(ctx context.Context, from int) error {
	for part := from; part < u.session.PartCount(); part++ {
		if err := u.sendPart(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

// sendPart reports progress, sends every piece of the part with the piece
// delay after each, then sends Part Complete.
func (u *Uploader) sendPart(ctx context.Context, part int) error {
	s := u.session
	r, err := s.Layout.Part(part)
	if err != nil {
		return err
	}

	s.CurrentPart = part
	u.reportProgress(Progress{
		Part:       part,
		TotalParts: s.PartCount(),
		Percentage: part * 100 / s.PartCount(),
		BytesSent:  s.bytesSent,
		Elapsed:    time.Since(s.StartedAt),
	})

	u.logDebug("sending part",
		"part", part,
		"start", r.Start,
		"end", r.End,
		"pieces", s.Layout.PieceCount(part),
	)

	stage := fmt.Sprintf("part %d", part)
	for piece := range s.Layout.Pieces(part) {
		frame, err := protocol.BuildPieceCmd(piece.Index, s.image[piece.Start:piece.End])
		if err != nil {
			return err
		}
		if err := u.send(ctx, frame); err != nil {
			return u.suspendOnError(stage, err)
		}

		s.bytesSent += piece.Len()
		u.stats.addPiece(piece.Len())

		if err := u.pieceDelay(ctx); err != nil {
			return u.suspendOnError(stage, err)
		}
	}

	done, err := protocol.BuildPartCompleteCmd(r.Len(), part)
	if err != nil {
		return err
	}
	if err := u.send(ctx, done); err != nil {
		return u.suspendOnError(stage, err)
	}

	u.stats.incPartSent(s.sent[part])
	s.sent[part] = true

	return nil
}

func (u *Uploader) send(ctx context.Context, frame []byte) error {
	if err := u.sender.SendFrame(ctx, frame); err != nil {
		return err
	}
	u.stats.incFrameSent()
	return nil
}

// pieceDelay blocks for the configured piece delay or until ctx is done.
func (u *Uploader) pieceDelay(ctx context.Context) error {
	if u.config.PieceDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(u.config.PieceDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// suspendOnError marks the session suspended after a failed send.
func (u *Uploader) suspendOnError(stage string, err error) error {
	if s := u.session; s != nil && !s.Suspended {
		s.Suspended = true
		u.stats.incSuspension()
	}

	u.logError("send failed, upload suspended", "stage", stage, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrSuspended, stage, err)
}

func (u *Uploader) violation(cmd byte, reason string) {
	v := &ProtocolViolation{Command: cmd, Reason: reason}
	u.stats.incFrameIgnored()
	u.logDebug("ignoring frame", "error", v.Error())
}

// reportProgress calls the observer if configured.
func (u *Uploader) reportProgress(p Progress) {
	if u.config.Observer != nil {
		u.config.Observer.OnUploadProgress(p)
	}
}

// logDebug logs a debug message if a logger is configured.
func (u *Uploader) logDebug(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (u *Uploader) logInfo(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (u *Uploader) logError(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Error(msg, keysAndValues...)
	}
}
