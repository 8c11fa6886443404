// Package mock implements in-process driver.Factory implementations for
// every capability, used by tests, demos, and cmd/daqd when no real
// instrument is attached. Each factory simulates its hardware in process
// (timers and delays, plus a frame-emitting goroutine for the camera) rather
// than talking to a bus, grounded on the shape
// of _examples/original_source/crates/daq-driver-mock (the Rust reference
// implementation's mock drivers), adapted to this registry's
// driver.Factory/driver.Components contract.
package mock

import (
	"bytes"
	"encoding/json"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
)

// decodeConfig re-marshals cfg.Raw to JSON and unmarshals it into dst, the
// same round-trip every mock factory's Validate/Build uses to turn the
// free-form TOML "config" block into a typed struct. Keys dst does not
// declare are rejected as InvalidConfig unless cfg.AllowUnknownFields is set.
func decodeConfig(cfg driver.Config, dst any) error {
	if cfg.Raw == nil {
		return nil
	}
	data, err := json.Marshal(cfg.Raw)
	if err != nil {
		return daqerr.Wrap(daqerr.InvalidConfig, err, "re-encoding config")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if !cfg.AllowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return daqerr.Wrap(daqerr.InvalidConfig, err, "decoding config")
	}
	return nil
}

// Factories returns one instance of every mock driver.Factory, ready to
// register with a registry.Registry.
func Factories() []driver.Factory {
	return []driver.Factory{
		NewStageFactory(),
		NewSensorFactory(),
		NewCameraFactory(),
		NewLaserFactory(),
	}
}
