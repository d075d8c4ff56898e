// Package ble implements the link transport interfaces on
// tinygo.org/x/bluetooth (BlueZ on Linux, CoreBluetooth on macOS, WinRT on
// Windows).
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/moffa90/go-esp32ota/link"
	"github.com/moffa90/go-esp32ota/protocol"
)

// ErrNotFound is returned when a service or characteristic is missing.
var ErrNotFound = errors.New("ble: not found")

// Transport scans for and connects to devices through one adapter.
type Transport struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	mu      sync.Mutex
	devices map[string]*Device
}

// NewTransport creates a transport on the given adapter, usually
// bluetooth.DefaultAdapter. The adapter is enabled on first use.
func NewTransport(adapter *bluetooth.Adapter) *Transport {
	return &Transport{
		adapter: adapter,
		devices: make(map[string]*Device),
	}
}

func (t *Transport) enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("enable adapter: %w", err)
			return
		}
		t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			t.mu.Lock()
			d := t.devices[device.Address.String()]
			t.mu.Unlock()
			if d != nil {
				d.fireDisconnect()
			}
		})
	})
	return t.enableErr
}

// RequestDevice scans until a device matching the filter is seen or ctx is done.
func (t *Transport) RequestDevice(ctx context.Context, filter link.Filter) (link.Device, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}

	var service bluetooth.UUID
	if filter.Service != "" {
		u, err := bluetooth.ParseUUID(filter.Service)
		if err != nil {
			return nil, fmt.Errorf("parse service uuid: %w", err)
		}
		service = u
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- t.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			var services []string
			if filter.Service != "" && result.HasServiceUUID(service) {
				services = []string{filter.Service}
			}
			if !filter.Match(result.LocalName(), services) {
				return
			}
			select {
			case found <- result:
				_ = a.StopScan()
			default:
			}
		})
	}()

	select {
	case result := <-found:
		d := &Device{
			transport: t,
			address:   result.Address,
			name:      result.LocalName(),
		}
		t.mu.Lock()
		t.devices[result.Address.String()] = d
		t.mu.Unlock()
		return d, nil

	case err := <-scanErr:
		if err == nil {
			err = errors.New("scan stopped")
		}
		return nil, fmt.Errorf("scan: %w", err)

	case <-ctx.Done():
		_ = t.adapter.StopScan()
		return nil, ctx.Err()
	}
}

// Device is a peripheral found by a scan.
type Device struct {
	transport *Transport
	address   bluetooth.Address
	name      string

	mu           sync.Mutex
	conn         *bluetooth.Device
	onDisconnect func()
}

// Name returns the advertised local name.
func (d *Device) Name() string {
	return d.name
}

// Connect opens the GATT connection.
func (d *Device) Connect(ctx context.Context) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, err := d.transport.adapter.Connect(d.address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.conn = &dev
	d.mu.Unlock()

	return &conn{dev: &dev}, nil
}

// Disconnect closes the GATT connection.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	c := d.conn
	d.conn = nil
	d.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Disconnect()
}

// OnDisconnect registers the handler for connection loss.
func (d *Device) OnDisconnect(handler func()) {
	d.mu.Lock()
	d.onDisconnect = handler
	d.mu.Unlock()
}

func (d *Device) fireDisconnect() {
	d.mu.Lock()
	d.conn = nil
	handler := d.onDisconnect
	d.mu.Unlock()

	if handler != nil {
		handler()
	}
}

type conn struct {
	dev *bluetooth.Device
}

func (c *conn) Service(ctx context.Context, uuid string) (link.Service, error) {
	u, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid: %w", err)
	}

	services, err := c.dev.DiscoverServices([]bluetooth.UUID{u})
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %s: %w", uuid, ErrNotFound)
	}

	return &service{svc: services[0]}, nil
}

type service struct {
	svc bluetooth.DeviceService
}

func (s *service) Characteristic(ctx context.Context, uuid string) (link.Characteristic, error) {
	u, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic uuid: %w", err)
	}

	chars, err := s.svc.DiscoverCharacteristics([]bluetooth.UUID{u})
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("characteristic %s: %w", uuid, ErrNotFound)
	}

	return &characteristic{ch: chars[0]}, nil
}

type characteristic struct {
	ch bluetooth.DeviceCharacteristic
}

func (c *characteristic) WriteWithoutResponse(value []byte) error {
	_, err := c.ch.WriteWithoutResponse(value)
	return err
}

func (c *characteristic) Subscribe(handler func(value []byte)) error {
	return c.ch.EnableNotifications(handler)
}

// DefaultFilter returns a filter on the OTA service UUID.
func DefaultFilter() link.Filter {
	return link.Filter{Service: protocol.ServiceUUID}
}
