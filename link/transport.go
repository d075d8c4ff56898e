package link

import (
	"context"
	"strings"
)

// Transport selects a device. It is the entry point of a BLE stack; see
// package link/ble for the real one and package simulator for an in-memory one.
type Transport interface {
	// RequestDevice returns the first device matching the filter.
	// An empty filter accepts any device advertising the OTA service.
	RequestDevice(ctx context.Context, filter Filter) (Device, error)
}

// Device is a selected peripheral. It can be connected more than once.
type Device interface {
	// Name returns the advertised device name
	Name() string

	// Connect opens the GATT connection
	Connect(ctx context.Context) (Conn, error)

	// Disconnect closes the connection. The disconnect handler still fires.
	Disconnect() error

	// OnDisconnect registers the handler called whenever the connection
	// drops, requested or not. A later registration replaces the earlier one.
	OnDisconnect(handler func())
}

// Conn is an open GATT connection.
type Conn interface {
	// Service looks up a primary service by UUID
	Service(ctx context.Context, uuid string) (Service, error)
}

// Service is a discovered GATT service.
type Service interface {
	// Characteristic looks up a characteristic of the service by UUID
	Characteristic(ctx context.Context, uuid string) (Characteristic, error)
}

// Characteristic is a discovered GATT characteristic.
type Characteristic interface {
	// WriteWithoutResponse writes a value without link-layer acknowledgement
	WriteWithoutResponse(value []byte) error

	// Subscribe enables notifications; handler receives every value.
	// The value slice may be reused after handler returns.
	Subscribe(handler func(value []byte)) error
}

// Filter selects which device RequestDevice returns.
// All set criteria must match; the zero Filter accepts every device.
type Filter struct {
	// Name is the exact advertised name
	Name string

	// NamePrefix is a prefix of the advertised name
	NamePrefix string

	// Service is a service UUID the device must advertise
	Service string
}

// AcceptAll reports whether no criteria are set.
func (f Filter) AcceptAll() bool {
	return f == Filter{}
}

// Match reports whether a device with the given advertised name and service
// UUIDs satisfies the filter. UUIDs are compared case-insensitively.
func (f Filter) Match(name string, services []string) bool {
	if f.Name != "" && name != f.Name {
		return false
	}
	if f.NamePrefix != "" && !strings.HasPrefix(name, f.NamePrefix) {
		return false
	}
	if f.Service != "" {
		for _, s := range services {
			if strings.EqualFold(s, f.Service) {
				return true
			}
		}
		return false
	}
	return true
}
