// Package driver defines the declarative driver factory contract (C6): a
// factory validates TOML-decoded configuration synchronously, then
// asynchronously builds a DeviceComponents bundle advertising which
// capabilities the concrete driver satisfies. Grounded on spec.md §4.6
// directly; the validate/build/register staging loosely echoes the
// composable-builder shape of engine/strategies in the teacher repo, though
// the teacher has no validate-before-build lifecycle of its own to port
// closely.
package driver

import (
	"context"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/observable"
)

// Lifecycle is an optional pair of hooks a DeviceComponents bundle may carry.
// OnRegister runs after the device record is inserted; if it fails, the
// registry calls OnUnregister (best-effort) and rolls back the insertion.
type Lifecycle interface {
	OnRegister(ctx context.Context) error
	OnUnregister(ctx context.Context) error
}

// Components is the bundle a factory returns: for each capability, either
// nil or a shared handle implementing that capability's trait. A single
// driver object may appear under multiple slots.
type Components struct {
	Movable           capability.Movable
	Readable          capability.Readable
	Triggerable       capability.Triggerable
	FrameProducer     capability.FrameProducer
	ExposureControl   capability.ExposureControl
	Parameterized     capability.Parameterized
	WavelengthTunable capability.WavelengthTunable
	ShutterControl    capability.ShutterControl
	EmissionControl   capability.EmissionControl
	Stageable         capability.Stageable

	// Metadata subset surfaced via DeviceInfo (spec.md §4.7).
	PositionUnits string
	ReadingUnits  string
	MinPosition   *float64
	MaxPosition   *float64

	Lifecycle Lifecycle // optional
}

// Capabilities returns the set of capability tags this bundle actually
// satisfies, derived from which fields are non-nil — this is the
// ground-truth capability index input, distinct from a Factory's purely
// informational Capabilities() advertisement.
func (c *Components) Capabilities() []capability.Capability {
	var caps []capability.Capability
	if c.Movable != nil {
		caps = append(caps, capability.Movable)
	}
	if c.Readable != nil {
		caps = append(caps, capability.Readable)
	}
	if c.Triggerable != nil {
		caps = append(caps, capability.Triggerable)
	}
	if c.FrameProducer != nil {
		caps = append(caps, capability.FrameProducer)
	}
	if c.ExposureControl != nil {
		caps = append(caps, capability.ExposureControl)
	}
	if c.Parameterized != nil {
		caps = append(caps, capability.Parameterized)
	}
	if c.WavelengthTunable != nil {
		caps = append(caps, capability.WavelengthTunable)
	}
	if c.ShutterControl != nil {
		caps = append(caps, capability.ShutterControl)
	}
	if c.EmissionControl != nil {
		caps = append(caps, capability.EmissionControl)
	}
	if c.Stageable != nil {
		caps = append(caps, capability.Stageable)
	}
	return caps
}

// Config is the decoded per-device TOML configuration a Factory validates
// and builds from. Raw is the raw decoded map for drivers that want direct
// access beyond a typed struct; AllowUnknownFields opts a driver out of the
// default strict-unknown-key rejection (SPEC_FULL.md §4's Open Question
// resolution).
type Config struct {
	Raw                map[string]any
	AllowUnknownFields bool
}

// Factory is the declarative builder contract every driver type implements.
type Factory interface {
	DriverType() string
	Name() string
	Capabilities() []capability.Capability
	Validate(cfg Config) error
	Build(ctx context.Context, cfg Config) (*Components, error)
}

// ensure the observable package is reachable from this package's public API
// surface for factories that want to build a ParameterSet inline.
var _ = observable.NewParameterSet
