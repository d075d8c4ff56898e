package link_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-esp32ota/firmware"
	"github.com/moffa90/go-esp32ota/link"
	"github.com/moffa90/go-esp32ota/ota"
	"github.com/moffa90/go-esp32ota/protocol"
	"github.com/moffa90/go-esp32ota/simulator"
)

const waitFor = 5 * time.Second

// events records observer calls from the event loop.
type events struct {
	mu     sync.Mutex
	log    []string
	frames []protocol.Frame
	finish chan struct{}
	down   chan struct{}
}

func newEvents() *events {
	return &events{
		finish: make(chan struct{}, 4),
		down:   make(chan struct{}, 4),
	}
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func (e *events) messages() []protocol.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Frame(nil), e.frames...)
}

func (e *events) linkObserver() link.Observer {
	return link.Callbacks{
		Connecting: func() { e.add("connecting") },
		Connect:    func(name string) { e.add("connect " + name) },
		Disconnected: func() {
			e.add("disconnect")
			e.down <- struct{}{}
		},
	}
}

func (e *events) otaObserver() ota.Observer {
	return ota.Callbacks{
		Message: func(f protocol.Frame) {
			e.mu.Lock()
			e.frames = append(e.frames, f)
			e.mu.Unlock()
		},
		Finished: func() {
			e.add("finished")
			e.finish <- struct{}{}
		},
	}
}

func wait(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// testImage returns a valid image of n bytes with a recognisable body.
func testImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i*13 + i>>8)
	}
	img[0] = firmware.ImageMagic
	img[2] = 2
	img[3] = 0x20
	return img
}

type harness struct {
	dev *simulator.Device
	mgr *link.Manager
	up  *ota.Uploader
	ev  *events
}

func newHarness(t *testing.T, cfg simulator.Config, opts ...link.Option) *harness {
	t.Helper()

	dev := simulator.NewDevice(cfg)
	ev := newEvents()

	opts = append([]link.Option{
		link.WithSettleDelay(0),
		link.WithReconnectDelay(10 * time.Millisecond),
		link.WithObserver(ev.linkObserver()),
	}, opts...)
	mgr := link.NewManager(simulator.NewTransport(dev), opts...)

	up := ota.New(mgr, ota.WithPieceDelay(0), ota.WithObserver(ev.otaObserver()))
	mgr.Attach(up)

	t.Cleanup(func() {
		_ = mgr.Close()
		dev.Close()
	})

	return &harness{dev: dev, mgr: mgr, up: up, ev: ev}
}

func TestConnect(t *testing.T) {
	h := newHarness(t, simulator.DefaultConfig())

	require.NoError(t, h.mgr.Connect(context.Background(), link.Filter{}))

	assert.Equal(t, link.StateConnected, h.mgr.State())
	assert.Equal(t, "ESP32 OTA", h.mgr.DeviceName())
	assert.Equal(t, []string{"connecting", "connect ESP32 OTA"}, h.ev.all())

	err := h.mgr.Connect(context.Background(), link.Filter{})
	assert.ErrorIs(t, err, link.ErrAlreadyConnected)
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name   string
		cfg    simulator.Config
		filter link.Filter
		op     string
	}{
		{
			name:   "no matching device",
			cfg:    simulator.DefaultConfig(),
			filter: link.Filter{Name: "missing"},
			op:     "request device",
		},
		{
			name:   "connection refused",
			cfg:    simulator.Config{Name: "ESP32 OTA", DropAtPart: -1, RefuseConnects: 1},
			filter: link.Filter{},
			op:     "connect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg)

			err := h.mgr.Connect(context.Background(), tt.filter)

			var le *link.LinkError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.op, le.Op)
			assert.Equal(t, link.StateDisconnected, h.mgr.State())
			assert.Empty(t, h.mgr.DeviceName())
			wait(t, h.ev.down, "disconnect")

			// the initial connect is not retried
			time.Sleep(50 * time.Millisecond)
			assert.Zero(t, h.dev.Connects())
		})
	}
}

func TestUploadRequiresConnection(t *testing.T) {
	h := newHarness(t, simulator.DefaultConfig())

	err := h.mgr.Upload(context.Background(), testImage(1000))
	assert.ErrorIs(t, err, link.ErrNotConnected)

	err = h.mgr.SendFrame(context.Background(), protocol.BuildDeleteImageCmd())
	assert.ErrorIs(t, err, link.ErrNotConnected)
}

func TestUploadNoHandler(t *testing.T) {
	dev := simulator.NewDevice(simulator.DefaultConfig())
	defer dev.Close()
	mgr := link.NewManager(simulator.NewTransport(dev), link.WithSettleDelay(0))
	defer mgr.Close()

	require.NoError(t, mgr.Connect(context.Background(), link.Filter{}))
	assert.ErrorIs(t, mgr.Upload(context.Background(), testImage(100)), link.ErrNoHandler)
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name string
		mode protocol.Mode
	}{
		{name: "normal mode", mode: protocol.ModeNormal},
		{name: "fast mode", mode: protocol.ModeFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := simulator.DefaultConfig()
			cfg.Mode = tt.mode
			h := newHarness(t, cfg)
			img := testImage(40000)

			require.NoError(t, h.mgr.Connect(context.Background(), link.Filter{}))
			require.NoError(t, h.mgr.Upload(context.Background(), img))
			wait(t, h.ev.finish, "upload finished")

			assert.True(t, h.dev.Installed())
			assert.Equal(t, img, h.dev.Image())
			assert.Equal(t, []int{0, 1, 2}, h.dev.PartsCompleted())
			assert.Equal(t, int64(1), h.up.Stats().UploadsCompleted)
		})
	}
}

func TestUploadTwiceRejected(t *testing.T) {
	// an unsupported mode leaves the first session waiting for the rest of the test
	cfg := simulator.DefaultConfig()
	cfg.Mode = protocol.Mode(0x7F)
	h := newHarness(t, cfg)
	ctx := context.Background()

	require.NoError(t, h.mgr.Connect(ctx, link.Filter{}))
	require.NoError(t, h.mgr.Upload(ctx, testImage(40000)))

	err := h.mgr.Upload(ctx, testImage(40000))

	var se *ota.StateError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ota.ErrUploadInProgress)
	assert.Equal(t, int64(1), h.up.Stats().UploadsStarted)
}

func TestReconnectResumesAtDroppedPart(t *testing.T) {
	tests := []struct {
		name string
		mode protocol.Mode
	}{
		{name: "normal mode", mode: protocol.ModeNormal},
		{name: "fast mode", mode: protocol.ModeFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := simulator.DefaultConfig()
			cfg.Mode = tt.mode
			cfg.DropAtPart = 1
			h := newHarness(t, cfg)
			img := testImage(40000)

			require.NoError(t, h.mgr.Connect(context.Background(), link.Filter{}))
			require.NoError(t, h.mgr.Upload(context.Background(), img))
			wait(t, h.ev.finish, "upload finished")

			assert.Equal(t, img, h.dev.Image())
			assert.Equal(t, []int{0, 1, 2}, h.dev.PartsCompleted())
			assert.Equal(t, 2, h.dev.Connects())

			stats := h.up.Stats()
			assert.Equal(t, int64(1), stats.Suspensions)
			assert.Equal(t, int64(1), stats.Resumes)
			assert.Equal(t, link.StateConnected, h.mgr.State())

			// the user was never told about the drop
			assert.NotContains(t, h.ev.all(), "disconnect")
		})
	}
}

func TestWriteFailureResumes(t *testing.T) {
	tests := []struct {
		name     string
		mode     protocol.Mode
		failAt   int
		wantMode bool
	}{
		// Delete Image goes out, File Length fails
		{name: "init frame", mode: protocol.ModeNormal, failAt: 2},
		{name: "piece normal mode", mode: protocol.ModeNormal, failAt: 10, wantMode: true},
		{name: "piece fast mode", mode: protocol.ModeFast, failAt: 150, wantMode: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := simulator.DefaultConfig()
			cfg.Mode = tt.mode
			h := newHarness(t, cfg)
			img := testImage(40000)
			ctx := context.Background()

			require.NoError(t, h.mgr.Connect(ctx, link.Filter{}))
			h.dev.FailWriteAt(tt.failAt, errors.New("tx queue full"))

			require.NoError(t, h.mgr.Upload(ctx, img))
			wait(t, h.ev.finish, "upload finished")

			assert.True(t, h.dev.Installed())
			assert.Equal(t, img, h.dev.Image())
			assert.Equal(t, 2, h.dev.Connects())

			stats := h.up.Stats()
			assert.Equal(t, int64(1), stats.Suspensions)
			assert.Equal(t, int64(1), stats.Resumes)
			assert.Equal(t, int64(1), stats.UploadsCompleted)
			assert.Equal(t, link.StateConnected, h.mgr.State())
			assert.NotContains(t, h.ev.all(), "disconnect")

			// a later upload is accepted
			require.NoError(t, h.mgr.Upload(ctx, img))
			wait(t, h.ev.finish, "second upload finished")
			assert.Equal(t, int64(2), h.up.Stats().UploadsCompleted)
		})
	}
}

// cancelTap cancels a context when the first outbound frame is written.
type cancelTap struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (c *cancelTap) Outbound([]byte) { c.once.Do(c.cancel) }
func (c *cancelTap) Inbound([]byte)  {}

func TestUploadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, simulator.DefaultConfig(), link.WithTap(&cancelTap{cancel: cancel}))
	require.NoError(t, h.mgr.Connect(context.Background(), link.Filter{}))

	err := h.mgr.Upload(ctx, testImage(40000))
	assert.ErrorIs(t, err, context.Canceled)

	require.Eventually(t, func() bool {
		return h.up.Stats().UploadsAborted == 1
	}, waitFor, 5*time.Millisecond)

	// cancelling is not a link loss
	assert.Equal(t, link.StateConnected, h.mgr.State())
	assert.Equal(t, 1, h.dev.Connects())

	img := testImage(40000)
	require.NoError(t, h.mgr.Upload(context.Background(), img))
	wait(t, h.ev.finish, "upload finished")
	assert.Equal(t, img, h.dev.Image())
}

func TestEmptyNotificationObserved(t *testing.T) {
	h := newHarness(t, simulator.DefaultConfig())
	require.NoError(t, h.mgr.Connect(context.Background(), link.Filter{}))

	h.dev.Notify(nil)

	require.Eventually(t, func() bool {
		return len(h.ev.messages()) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, protocol.Frame{}, h.ev.messages()[0])
	assert.Equal(t, int64(1), h.up.Stats().FramesIgnored)
	assert.Equal(t, link.StateConnected, h.mgr.State())
}

func TestReconnectClosesHalfOpenConnection(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.DropAtPart = 1
	h := newHarness(t, cfg)
	img := testImage(40000)

	require.NoError(t, h.mgr.Connect(context.Background(), link.Filter{}))
	h.dev.SetFailSubscribes(1)
	require.NoError(t, h.mgr.Upload(context.Background(), img))
	wait(t, h.ev.finish, "upload finished")

	// the first reconnect opened the connection but failed to subscribe
	assert.Equal(t, 3, h.dev.Connects())
	assert.Equal(t, 1, h.dev.Disconnects())
	assert.Equal(t, img, h.dev.Image())
	assert.Equal(t, int64(1), h.up.Stats().Resumes)
	assert.Equal(t, link.StateConnected, h.mgr.State())
	assert.NotContains(t, h.ev.all(), "disconnect")
}

func TestReconnectAttemptsExhausted(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.DropAtPart = 1
	h := newHarness(t, cfg, link.WithMaxReconnectAttempts(2))

	require.NoError(t, h.mgr.Connect(context.Background(), link.Filter{}))
	h.dev.SetRefuseConnects(10)
	require.NoError(t, h.mgr.Upload(context.Background(), testImage(40000)))

	wait(t, h.ev.down, "teardown")

	assert.Equal(t, link.StateDisconnected, h.mgr.State())
	assert.Equal(t, int64(1), h.up.Stats().UploadsAborted)
	assert.False(t, h.dev.Installed())
}

func TestUserDisconnect(t *testing.T) {
	h := newHarness(t, simulator.DefaultConfig())
	ctx := context.Background()

	require.NoError(t, h.mgr.Connect(ctx, link.Filter{}))
	require.NoError(t, h.mgr.Disconnect(ctx))

	wait(t, h.ev.down, "disconnect")
	assert.Equal(t, link.StateDisconnected, h.mgr.State())
	assert.Empty(t, h.mgr.DeviceName())

	// the device's own disconnect event is stale and must not trigger a reconnect
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.dev.Connects())
	assert.Equal(t, []string{"connecting", "connect ESP32 OTA", "disconnect"}, h.ev.all())

	// a second Disconnect is a no-op
	assert.NoError(t, h.mgr.Disconnect(ctx))
}

func TestDisconnectDuringReconnectWait(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.DropAtPart = 1
	h := newHarness(t, cfg, link.WithReconnectDelay(time.Hour))
	ctx := context.Background()

	require.NoError(t, h.mgr.Connect(ctx, link.Filter{}))
	require.NoError(t, h.mgr.Upload(ctx, testImage(40000)))

	require.Eventually(t, func() bool {
		return h.up.Stats().Suspensions == 1
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, h.mgr.Disconnect(ctx))
	wait(t, h.ev.down, "disconnect")

	assert.Equal(t, int64(1), h.up.Stats().UploadsAborted)
	assert.Equal(t, 1, h.dev.Connects())
}

type recordingTap struct {
	mu      sync.Mutex
	out, in [][]byte
}

func (r *recordingTap) Outbound(frame []byte) {
	r.mu.Lock()
	r.out = append(r.out, append([]byte(nil), frame...))
	r.mu.Unlock()
}

func (r *recordingTap) Inbound(frame []byte) {
	r.mu.Lock()
	r.in = append(r.in, append([]byte(nil), frame...))
	r.mu.Unlock()
}

func TestTapSeesBothDirections(t *testing.T) {
	tap := &recordingTap{}
	h := newHarness(t, simulator.DefaultConfig(), link.WithTap(tap))
	ctx := context.Background()

	require.NoError(t, h.mgr.Connect(ctx, link.Filter{}))
	require.NoError(t, h.mgr.Upload(ctx, testImage(1000)))
	wait(t, h.ev.finish, "upload finished")

	tap.mu.Lock()
	defer tap.mu.Unlock()

	require.NotEmpty(t, tap.out)
	assert.Equal(t, []byte{protocol.CmdDeleteImage}, tap.out[0])
	require.NotEmpty(t, tap.in)
	assert.Equal(t, []byte{protocol.CmdModeAnnouncement, 0}, tap.in[0])
}

func TestClosedManager(t *testing.T) {
	h := newHarness(t, simulator.DefaultConfig())
	require.NoError(t, h.mgr.Close())

	err := h.mgr.Connect(context.Background(), link.Filter{})
	assert.ErrorIs(t, err, link.ErrClosed)
	assert.NoError(t, h.mgr.Close())
}
