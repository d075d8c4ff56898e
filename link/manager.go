package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moffa90/go-esp32ota/ota"
	"github.com/moffa90/go-esp32ota/protocol"
)

// Handler is the transfer engine driven by the manager. *ota.Uploader
// implements it.
type Handler interface {
	Upload(ctx context.Context, image []byte) error
	HandleFrame(ctx context.Context, frame protocol.Frame) error
	Suspend()
	Resume(ctx context.Context) error
	Abort(reason string)
	InProgress() bool
}

// Manager owns the connection to one device: it connects, reconnects after
// unsolicited drops, routes notifications to the attached Handler and
// writes frames for it.
//
// All protocol work runs on one event-loop goroutine: notifications,
// disconnect events, reconnect timers and API calls are queued and executed
// in order. Manager methods are safe for concurrent use, but must not be
// called synchronously from an Observer or the Handler, except SendFrame.
type Manager struct {
	transport Transport
	config    Config

	queue     *eventQueue
	done      chan struct{}
	closeOnce sync.Once

	// mu guards the fields read outside the loop
	mu        sync.Mutex
	state     State
	name      string
	writeChar Characteristic
	opCancel  context.CancelFunc

	writeMu sync.Mutex

	// owned by the loop
	handler        Handler
	device         Device
	opCtx          context.Context
	userDisconnect bool
	reconnectTimer *time.Timer
	attempts       int
	gen            int
}

// NewManager creates a Manager and starts its event loop. Call Close to stop it.
//
// Example:
//
//	mgr := link.NewManager(ble.NewTransport(bluetooth.DefaultAdapter),
//	    link.WithObserver(link.Callbacks{Connect: onConnect}),
//	)
//	up := ota.New(mgr)
//	mgr.Attach(up)
func NewManager(transport Transport, opts ...Option) *Manager {
	if transport == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Manager{
		transport: transport,
		config:    cfg,
		queue:     newEventQueue(),
		done:      make(chan struct{}),
		state:     StateDisconnected,
		opCtx:     context.Background(),
	}
	go m.run()

	return m
}

// Attach sets the handler that receives inbound frames and is resumed after
// a reconnect. A later call replaces the earlier handler.
func (m *Manager) Attach(h Handler) {
	_ = m.do(context.Background(), func() error {
		m.handler = h
		return nil
	})
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// DeviceName returns the selected device's name, or "" when none is selected.
func (m *Manager) DeviceName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Connect selects a device and runs the connect sequence:
//  1. Request a device matching filter from the transport
//  2. Register for disconnect events
//  3. Wait the settle delay, connect, discover the OTA service and both
//     characteristics, subscribe to notifications
//  4. Report OnConnect and resume a suspended transfer
//
// A failure returns a *LinkError and leaves the manager disconnected; the
// initial connect is not retried.
func (m *Manager) Connect(ctx context.Context, filter Filter) error {
	return m.do(ctx, func() error {
		return m.connect(ctx, filter)
	})
}

// Disconnect tears down the connection at the user's request. In-flight
// sends are cancelled, a pending reconnect is stopped, the transfer is
// aborted and OnDisconnect fires. It is a no-op when no device is selected.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.cancelOps()

	return m.do(ctx, func() error {
		if m.device == nil {
			return nil
		}

		m.userDisconnect = true
		m.stopReconnect()

		dev := m.device
		err := dev.Disconnect()
		m.teardown("user disconnect")

		if err != nil {
			return &LinkError{Op: "disconnect", Err: err}
		}
		return nil
	})
}

// Upload starts a transfer through the attached handler. The link must be
// connected. A transfer interrupted by a link drop or a failed write is
// resumed after a reconnect rather than reported as an error. Cancelling ctx
// while the init frames are sent aborts the transfer and returns ctx's error.
func (m *Manager) Upload(ctx context.Context, image []byte) error {
	return m.do(ctx, func() error {
		if m.handler == nil {
			return ErrNoHandler
		}
		if m.State() != StateConnected {
			return ErrNotConnected
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		opCtx, cancel := m.opContext(ctx)
		defer cancel()

		err := m.handler.Upload(opCtx, image)
		if !errors.Is(err, ota.ErrSuspended) {
			return err
		}

		if ctx.Err() != nil {
			m.handler.Abort("upload cancelled")
			return err
		}

		m.logError("upload interrupted, waiting for reconnect", "error", err)
		m.dropLink(err)
		return nil
	})
}

// SendFrame writes one frame to the device without link-layer
// acknowledgement. It requires StateConnected.
func (m *Manager) SendFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	ch, state := m.writeChar, m.state
	m.mu.Unlock()

	if state != StateConnected || ch == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.config.Tap != nil {
		m.config.Tap.Outbound(frame)
	}
	m.logFrame(">", frame)

	if err := ch.WriteWithoutResponse(frame); err != nil {
		return &LinkError{Op: "write", Err: err}
	}
	return nil
}

// Close disconnects and stops the event loop.
func (m *Manager) Close() error {
	err := m.Disconnect(context.Background())
	m.closeOnce.Do(func() { close(m.done) })

	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (m *Manager) connect(ctx context.Context, filter Filter) error {
	if m.device != nil {
		return ErrAlreadyConnected
	}

	m.setState(StateConnecting)
	m.logInfo("requesting device", "name", filter.Name, "prefix", filter.NamePrefix)

	dev, err := m.transport.RequestDevice(ctx, filter)
	if err != nil {
		m.logError("device selection failed", "error", err)
		m.teardown("device selection failed")
		return &LinkError{Op: "request device", Err: err}
	}

	opCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.name = dev.Name()
	m.opCancel = cancel
	m.mu.Unlock()

	m.device = dev
	m.opCtx = opCtx
	m.userDisconnect = false
	m.attempts = 0

	m.logInfo("connecting to device", "device", dev.Name())

	connCtx, stop := m.opContext(ctx)
	defer stop()

	if err := m.connectSequence(connCtx, dev); err != nil {
		m.logError("connect failed", "device", dev.Name(), "error", err)
		m.teardown("connect failed")
		_ = dev.Disconnect()
		return err
	}
	return nil
}

// connectSequence runs one connect attempt on an already selected device.
func (m *Manager) connectSequence(ctx context.Context, dev Device) error {
	m.setState(StateConnecting)
	if m.config.Observer != nil {
		m.config.Observer.OnConnecting()
	}

	// events registered for an earlier attempt are stale once this one starts
	m.gen++
	gen := m.gen
	dev.OnDisconnect(func() {
		m.post(func() { m.handleDisconnect(dev, gen) })
	})

	if err := sleep(ctx, m.config.SettleDelay); err != nil {
		return &LinkError{Op: "connect", Err: err}
	}

	conn, err := dev.Connect(ctx)
	if err != nil {
		return &LinkError{Op: "connect", Err: err}
	}
	m.logInfo("server connected", "device", dev.Name())

	svc, err := conn.Service(ctx, m.config.ServiceUUID)
	if err != nil {
		return &LinkError{Op: "discover service", Err: err}
	}

	rx, err := svc.Characteristic(ctx, m.config.RxCharUUID)
	if err != nil {
		return &LinkError{Op: "discover rx characteristic", Err: err}
	}
	tx, err := svc.Characteristic(ctx, m.config.TxCharUUID)
	if err != nil {
		return &LinkError{Op: "discover tx characteristic", Err: err}
	}

	err = tx.Subscribe(func(value []byte) {
		frame := append([]byte(nil), value...)
		m.post(func() { m.handleNotification(dev, frame) })
	})
	if err != nil {
		return &LinkError{Op: "subscribe", Err: err}
	}

	m.mu.Lock()
	m.writeChar = rx
	m.state = StateConnected
	m.mu.Unlock()

	m.logInfo("connected", "device", dev.Name())
	if m.config.Observer != nil {
		m.config.Observer.OnConnect(dev.Name())
	}

	if m.handler != nil && m.handler.InProgress() {
		if err := m.handler.Resume(m.opCtx); err != nil {
			return &LinkError{Op: "resume", Err: err}
		}
	}

	m.attempts = 0
	return nil
}

func (m *Manager) handleNotification(dev Device, frame []byte) {
	if dev != m.device {
		return
	}

	if m.config.Tap != nil {
		m.config.Tap.Inbound(frame)
	}
	m.logFrame("<", frame)

	// an empty notification is passed on as the zero Frame
	f, err := protocol.Decode(frame)
	if err != nil {
		m.logDebug("empty notification", "error", err)
	}
	if m.handler == nil {
		return
	}

	if err := m.handler.HandleFrame(m.opCtx, f); err != nil {
		m.logError("transfer interrupted", "error", err)
		if errors.Is(err, ota.ErrSuspended) {
			m.dropLink(err)
		}
	}
}

func (m *Manager) handleDisconnect(dev Device, gen int) {
	if dev != m.device || gen != m.gen {
		return
	}

	if m.userDisconnect {
		m.teardown("user disconnect")
		return
	}

	// a link already marked down is waiting for its reconnect
	if m.State() != StateConnected {
		return
	}

	m.logInfo("link dropped, reconnecting", "device", dev.Name(), "delay", m.config.ReconnectDelay.String())
	m.markDown()
	if m.handler != nil {
		m.handler.Suspend()
	}
	m.scheduleReconnect(dev)
}

// dropLink handles a failed send on a link that still reports connected as
// an unsolicited drop: the connection is closed, the transfer suspended and
// a reconnect scheduled. It does nothing once a user disconnect has begun.
func (m *Manager) dropLink(cause error) {
	dev := m.device
	if dev == nil || m.State() != StateConnected || m.opCtx.Err() != nil {
		return
	}

	m.logInfo("write failed, reconnecting", "device", dev.Name(), "error", cause.Error())
	m.markDown()
	if m.handler != nil {
		m.handler.Suspend()
	}
	_ = dev.Disconnect()
	m.scheduleReconnect(dev)
}

// markDown drops the write handle and marks the link disconnected while the
// device stays selected.
func (m *Manager) markDown() {
	m.mu.Lock()
	m.writeChar = nil
	m.state = StateDisconnected
	m.mu.Unlock()
}

func (m *Manager) scheduleReconnect(dev Device) {
	m.stopReconnect()
	m.reconnectTimer = time.AfterFunc(m.config.ReconnectDelay, func() {
		m.post(func() { m.reconnect(dev) })
	})
}

func (m *Manager) reconnect(dev Device) {
	if dev != m.device || m.userDisconnect || m.State() == StateConnected {
		return
	}

	m.reconnectTimer = nil
	m.attempts++
	m.logInfo("reconnect attempt", "device", dev.Name(), "attempt", m.attempts)

	err := m.connectSequence(m.opCtx, dev)
	if err == nil {
		return
	}

	m.logError("reconnect failed", "device", dev.Name(), "attempt", m.attempts, "error", err)
	m.markDown()

	// close a half-open connection; its disconnect event finds the link
	// already down and is ignored
	_ = dev.Disconnect()

	if m.config.MaxReconnectAttempts > 0 && m.attempts >= m.config.MaxReconnectAttempts {
		m.teardown("reconnect attempts exhausted")
		return
	}
	m.scheduleReconnect(dev)
}

// teardown ends the device session: the transfer is aborted, every handle
// is dropped and OnDisconnect fires.
func (m *Manager) teardown(reason string) {
	m.stopReconnect()

	if m.handler != nil && m.handler.InProgress() {
		m.handler.Abort(reason)
	}

	m.mu.Lock()
	cancel := m.opCancel
	m.opCancel = nil
	m.state = StateDisconnected
	m.name = ""
	m.writeChar = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.device = nil
	m.opCtx = context.Background()
	m.userDisconnect = false
	m.attempts = 0

	m.logInfo("disconnected", "reason", reason)
	if m.config.Observer != nil {
		m.config.Observer.OnDisconnect()
	}
}

func (m *Manager) stopReconnect() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// cancelOps cancels the context of in-flight sends. Safe to call off the loop.
func (m *Manager) cancelOps() {
	m.mu.Lock()
	cancel := m.opCancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// opContext returns a context cancelled when either ctx or the device
// session ends.
func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.opCtx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Manager) logFrame(dir string, frame []byte) {
	if m.config.Logger == nil || len(frame) == 0 {
		return
	}
	f := protocol.Frame{Command: frame[0], Payload: frame[1:]}
	m.config.Logger.Debug(dir+" "+f.String(), "command", protocol.CommandName(f.Command))
}

// logDebug logs a debug message if a logger is configured.
func (m *Manager) logDebug(msg string, keysAndValues ...interface{}) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (m *Manager) logInfo(msg string, keysAndValues ...interface{}) {
	if m.config.Logger != nil {
		m.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (m *Manager) logError(msg string, keysAndValues ...interface{}) {
	if m.config.Logger != nil {
		m.config.Logger.Error(msg, keysAndValues...)
	}
}
