// Package device provides access to the node's electrical measurements. The
// backend is selected at runtime by configuration: a simulated device, a serial
// meter link or an MQTT telemetry feed.
package device

import (
	"errors"
	"fmt"

	"code.siemens.com/grid-load-balancer/common"
)

// ErrNoReading is returned before the backend has produced its first
// measurement.
var ErrNoReading = errors.New("device: no reading available yet")

var ErrUnknownBackend = errors.New("device: unknown backend")

type Device interface {
	// Time returns the device clock used to timestamp historic data.
	Time() (float64, error)
	// Gateway returns the current net power flow over the node's gateway.
	Gateway() (float64, error)
	// NetGeneration returns the current generation minus local load.
	NetGeneration() (float64, error)
	// BreakerStates returns the position of every fault interrupter the
	// backend knows about, true meaning closed. Empty when the backend has
	// no breaker telemetry.
	BreakerStates() map[string]bool
}

func New(cfg common.DeviceConfig, id string, url string) (Device, error) {
	switch cfg.Backend {
	case "sim":
		return NewSim(cfg), nil
	case "serial":
		return NewSerial(cfg.SerialPort, cfg.SerialBaud)
	case "mqtt":
		return NewMqtt(id, url)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
