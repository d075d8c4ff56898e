package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/moffa90/go-esp32ota/link"
	"github.com/moffa90/go-esp32ota/protocol"
)

var (
	// ErrNotConnected is returned by writes to a disconnected device.
	ErrNotConnected = errors.New("simulator: device not connected")

	// ErrConnectRefused is returned by Connect while Config.RefuseConnects > 0.
	ErrConnectRefused = errors.New("simulator: connection refused")

	// ErrNoService is returned for an unknown service UUID.
	ErrNoService = errors.New("simulator: service not found")

	// ErrNoCharacteristic is returned for an unknown characteristic UUID.
	ErrNoCharacteristic = errors.New("simulator: characteristic not found")

	// ErrSubscribeFailed is returned by Subscribe while subscribe failures are pending.
	ErrSubscribeFailed = errors.New("simulator: subscribe failed")
)

// Config describes the simulated device.
type Config struct {
	// Name is the advertised name
	Name string

	// Mode is announced after the OTA parameters are received
	Mode protocol.Mode

	// DropAtPart drops the link once, on the first piece of this part.
	// Negative disables the drop.
	DropAtPart int

	// RefuseConnects makes this many connect attempts fail
	RefuseConnects int

	// RefuseAfterDrop makes this many connect attempts fail after the
	// DropAtPart drop
	RefuseAfterDrop int

	// Result is sent as result text after Installing; empty sends nothing
	Result string
}

// DefaultConfig returns a device named "ESP32 OTA" in normal mode.
func DefaultConfig() Config {
	return Config{
		Name:       "ESP32 OTA",
		Mode:       protocol.ModeNormal,
		DropAtPart: -1,
		Result:     "OTA Success",
	}
}

// Device is an in-memory ESP32 running the OTA receiver. It implements
// link.Device and reassembles the image it is sent.
//
// Notifications and disconnect events are delivered from a separate
// goroutine, as a BLE stack would.
type Device struct {
	mu           sync.Mutex
	cfg          Config
	connected    bool
	dropped      bool
	onDisconnect func()
	notify       func([]byte)
	outbox       chan func()
	done         chan struct{}
	closeOnce    sync.Once

	fileLen   int
	parts     int
	mtu       int
	image     []byte
	partBuf   map[int][]byte
	received  []bool
	current   int
	installed bool

	connects int
	frames   []protocol.Frame

	failIn  int
	failErr error

	failSubscribes int
	disconnects    int
}

// NewDevice creates a simulated device. Call Close to release it.
func NewDevice(cfg Config) *Device {
	d := &Device{
		cfg:     cfg,
		outbox:  make(chan func(), 1024),
		done:    make(chan struct{}),
		partBuf: make(map[int][]byte),
	}
	go d.deliver()
	return d
}

// Name returns the advertised name.
func (d *Device) Name() string {
	return d.cfg.Name
}

// Connect opens a connection, failing while RefuseConnects is positive.
func (d *Device) Connect(ctx context.Context) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.RefuseConnects > 0 {
		d.cfg.RefuseConnects--
		return nil, ErrConnectRefused
	}

	d.connected = true
	d.connects++
	clear(d.partBuf)

	return &conn{dev: d}, nil
}

// Disconnect closes the connection and fires the disconnect handler.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	was := d.connected
	d.connected = false
	d.notify = nil
	d.mu.Unlock()

	if was {
		d.mu.Lock()
		d.disconnects++
		d.mu.Unlock()
		d.fireDisconnect()
	}
	return nil
}

// OnDisconnect registers the disconnect handler.
func (d *Device) OnDisconnect(handler func()) {
	d.mu.Lock()
	d.onDisconnect = handler
	d.mu.Unlock()
}

// SetRefuseConnects makes the next n connect attempts fail.
func (d *Device) SetRefuseConnects(n int) {
	d.mu.Lock()
	d.cfg.RefuseConnects = n
	d.mu.Unlock()
}

// FailWriteAt makes the n-th write from now fail with err while the link
// stays up, as a full transmit queue would. n < 1 clears a pending failure.
func (d *Device) FailWriteAt(n int, err error) {
	d.mu.Lock()
	d.failIn = max(n, 0)
	d.failErr = err
	d.mu.Unlock()
}

// SetFailSubscribes makes the next n subscribe calls fail after the
// connection is open, leaving it half-open.
func (d *Device) SetFailSubscribes(n int) {
	d.mu.Lock()
	d.failSubscribes = n
	d.mu.Unlock()
}

// Disconnects returns the number of host-requested disconnects of an open connection.
func (d *Device) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// Notify sends value to the host as a raw notification.
func (d *Device) Notify(value []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.send(append([]byte(nil), value...))
}

// Drop simulates an unsolicited link loss.
func (d *Device) Drop() {
	_ = d.Disconnect()
}

// Close stops the delivery goroutine.
func (d *Device) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// Image returns a copy of the reassembled image.
func (d *Device) Image() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.image...)
}

// Installed reports whether every part arrived and Installing was sent.
func (d *Device) Installed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.installed
}

// Connects returns the number of successful connects.
func (d *Device) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Frames returns every frame the device accepted, in order.
func (d *Device) Frames() []protocol.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Frame(nil), d.frames...)
}

// PartsCompleted returns the part indexes of every Part Complete received, in order.
func (d *Device) PartsCompleted() []int {
	var parts []int
	for _, f := range d.Frames() {
		if f.Command == protocol.CmdPartComplete && len(f.Payload) >= 4 {
			parts = append(parts, int(binary.BigEndian.Uint16(f.Payload[2:4])))
		}
	}
	return parts
}

// write handles one frame written by the host.
func (d *Device) write(value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return ErrNotConnected
	}

	if d.failIn > 0 {
		d.failIn--
		if d.failIn == 0 {
			return d.failErr
		}
	}

	f, err := protocol.Decode(value)
	if err != nil {
		return nil
	}
	f.Payload = append([]byte(nil), f.Payload...)

	if f.Command == protocol.CmdWritePiece && d.shouldDrop() {
		d.dropped = true
		d.cfg.RefuseConnects += d.cfg.RefuseAfterDrop
		d.connected = false
		d.notify = nil
		go d.fireDisconnect()
		return nil
	}

	d.frames = append(d.frames, f)
	d.receive(f)
	return nil
}

func (d *Device) shouldDrop() bool {
	return !d.dropped && d.cfg.DropAtPart >= 0 && d.current == d.cfg.DropAtPart
}

// receive runs the OTA receiver. Caller holds d.mu.
func (d *Device) receive(f protocol.Frame) {
	switch f.Command {
	case protocol.CmdDeleteImage:
		d.image = nil
		d.received = nil
		d.installed = false
		d.current = 0
		clear(d.partBuf)

	case protocol.CmdFileLength:
		if len(f.Payload) >= 4 {
			d.fileLen = int(binary.BigEndian.Uint32(f.Payload))
		}

	case protocol.CmdOTAParams:
		if len(f.Payload) < 4 {
			return
		}
		d.parts = int(binary.BigEndian.Uint16(f.Payload[0:2]))
		d.mtu = int(binary.BigEndian.Uint16(f.Payload[2:4]))
		d.image = make([]byte, d.fileLen)
		d.received = make([]bool, d.parts)
		d.send(protocol.Encode(protocol.CmdModeAnnouncement, []byte{byte(d.cfg.Mode)}))

	case protocol.CmdWritePiece:
		if len(f.Payload) < 1 {
			return
		}
		d.partBuf[int(f.Payload[0])] = f.Payload[1:]

	case protocol.CmdPartComplete:
		if len(f.Payload) < 4 {
			return
		}
		partLen := int(binary.BigEndian.Uint16(f.Payload[0:2]))
		part := int(binary.BigEndian.Uint16(f.Payload[2:4]))
		d.completePart(part, partLen)
	}
}

// completePart assembles the buffered pieces. A part with missing bytes is
// requested again. Caller holds d.mu.
func (d *Device) completePart(part, partLen int) {
	defer clear(d.partBuf)

	if part >= d.parts || d.mtu == 0 {
		return
	}

	data := make([]byte, 0, partLen)
	for i := 0; len(data) < partLen; i++ {
		piece, ok := d.partBuf[i]
		if !ok {
			break
		}
		data = append(data, piece...)
	}
	if len(data) != partLen {
		d.send(requestPart(part))
		return
	}

	offset := part * partLen
	if part == d.parts-1 {
		offset = d.fileLen - partLen
	}
	copy(d.image[offset:], data)
	d.received[part] = true
	d.current = part + 1

	if next := d.firstMissing(); next >= 0 {
		if d.cfg.Mode == protocol.ModeNormal {
			d.send(requestPart(next))
		}
		return
	}

	d.installed = true
	d.send([]byte{protocol.CmdInstalling})
	if d.cfg.Result != "" {
		d.send(protocol.Encode(protocol.CmdResultText, []byte(d.cfg.Result)))
	}
}

func (d *Device) firstMissing() int {
	for i, ok := range d.received {
		if !ok {
			return i
		}
	}
	return -1
}

func requestPart(part int) []byte {
	var payload [2]byte
	binary.BigEndian.PutUint16(payload[:], uint16(part))
	return protocol.Encode(protocol.CmdRequestPart, payload[:])
}

// send queues a notification. Caller holds d.mu.
func (d *Device) send(value []byte) {
	notify := d.notify
	if notify == nil {
		return
	}
	d.outbox <- func() { notify(value) }
}

func (d *Device) fireDisconnect() {
	d.mu.Lock()
	handler := d.onDisconnect
	d.mu.Unlock()

	if handler != nil {
		d.outbox <- handler
	}
}

func (d *Device) deliver() {
	for {
		select {
		case <-d.done:
			return
		case fn := <-d.outbox:
			fn()
		}
	}
}

type conn struct {
	dev *Device
}

func (c *conn) Service(ctx context.Context, uuid string) (link.Service, error) {
	if !equalUUID(uuid, protocol.ServiceUUID) {
		return nil, ErrNoService
	}
	return &service{dev: c.dev}, nil
}

type service struct {
	dev *Device
}

func (s *service) Characteristic(ctx context.Context, uuid string) (link.Characteristic, error) {
	switch {
	case equalUUID(uuid, protocol.RxCharUUID):
		return &rxChar{dev: s.dev}, nil
	case equalUUID(uuid, protocol.TxCharUUID):
		return &txChar{dev: s.dev}, nil
	default:
		return nil, ErrNoCharacteristic
	}
}

type rxChar struct {
	dev *Device
}

func (c *rxChar) WriteWithoutResponse(value []byte) error {
	return c.dev.write(value)
}

func (c *rxChar) Subscribe(handler func([]byte)) error {
	return errors.New("simulator: rx characteristic does not notify")
}

type txChar struct {
	dev *Device
}

func (c *txChar) WriteWithoutResponse(value []byte) error {
	return errors.New("simulator: tx characteristic is not writable")
}

func (c *txChar) Subscribe(handler func([]byte)) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()

	if !c.dev.connected {
		return ErrNotConnected
	}
	if c.dev.failSubscribes > 0 {
		c.dev.failSubscribes--
		return ErrSubscribeFailed
	}
	c.dev.notify = handler
	return nil
}
