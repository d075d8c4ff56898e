package simulator

import (
	"context"
	"errors"
	"strings"

	"github.com/moffa90/go-esp32ota/link"
	"github.com/moffa90/go-esp32ota/protocol"
)

// ErrNoDevice is returned by RequestDevice when no device matches the filter.
var ErrNoDevice = errors.New("simulator: no matching device")

// Transport offers a fixed set of simulated devices. It implements link.Transport.
type Transport struct {
	devices []*Device
}

// NewTransport creates a transport advertising the given devices.
func NewTransport(devices ...*Device) *Transport {
	return &Transport{devices: devices}
}

// RequestDevice returns the first device whose name matches the filter.
// Every simulated device advertises the OTA service.
func (t *Transport) RequestDevice(ctx context.Context, filter link.Filter) (link.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, d := range t.devices {
		if filter.Match(d.Name(), []string{protocol.ServiceUUID}) {
			return d, nil
		}
	}
	return nil, ErrNoDevice
}

func equalUUID(a, b string) bool {
	return strings.EqualFold(a, b)
}
