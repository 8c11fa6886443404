// Package capability defines the narrow, single-purpose interfaces a device
// driver may satisfy. Each interface corresponds to exactly one Capability
// tag in the registry's capability index. Grounded on the narrow-interface,
// explicit-thread-safety-contract style of
// ehrlich-b-go-ublk/internal/interfaces/backend.go in the teacher's pack.
package capability

import (
	"context"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/frame"
	"github.com/easternanemone/rust-daq-sub009/internal/observable"
)

// Capability is an enumerated tag identifying one trait contract a device may
// satisfy. A single driver object may be registered under several tags.
type Capability string

const (
	Movable               Capability = "Movable"
	Readable              Capability = "Readable"
	Triggerable           Capability = "Triggerable"
	FrameProducer         Capability = "FrameProducer"
	ExposureControl       Capability = "ExposureControl"
	Parameterized         Capability = "Parameterized"
	WavelengthTunable     Capability = "WavelengthTunable"
	ShutterControl        Capability = "ShutterControl"
	EmissionControl       Capability = "EmissionControl"
	Stageable             Capability = "Stageable"
)

// All enumerates every known capability, in the order DeviceInfo's bitset
// reports them.
var All = []Capability{
	Movable, Readable, Triggerable, FrameProducer, ExposureControl,
	Parameterized, WavelengthTunable, ShutterControl, EmissionControl, Stageable,
}

// Movable is satisfied by motion stages. move_abs may return before motion
// settles; WaitSettled blocks until the stage reports steady state or times
// out.
type Movable interface {
	MoveAbs(ctx context.Context, position float64) error
	MoveRel(ctx context.Context, delta float64) error
	Position(ctx context.Context) (float64, error)
	WaitSettled(ctx context.Context) error
	StopMotion(ctx context.Context) error
}

// Readable is satisfied by single-value sensors (power meters, thermocouples).
// Reported units are carried by the factory's driver.Components
// (ReadingUnits) and surfaced in DeviceInfo, not through this interface.
type Readable interface {
	Read(ctx context.Context) (float64, error)
}

// Triggerable is satisfied by devices with an arm/fire/disarm cycle.
// Fire is illegal when not armed and must return a daqerr InvalidState error.
type Triggerable interface {
	Arm(ctx context.Context, config TriggerConfig) error
	Disarm(ctx context.Context) error
	Fire(ctx context.Context) error
}

// TriggerConfig carries driver-specific trigger parameters as JSON-compatible
// values, since the set of knobs varies per instrument.
type TriggerConfig struct {
	Mode       string
	DelayNs    int64
	Parameters map[string]any
}

// FrameObserver receives a read-only view of each produced frame inline on
// the producer's delivery path. Implementations MUST complete in under
// 100 microseconds (spec's observer timing floor); any real work must be
// offloaded via a non-blocking send on a bounded channel, dropping rather
// than blocking when full. The Tee calling this method logs but does not
// abort a slow observer.
type FrameObserver interface {
	OnFrame(view *frame.FrameView)
}

// FrameProducer is satisfied by cameras and other imaging sensors.
// SubscribeFrames returns a lossy broadcast subscription: slow consumers
// observe drops, never backpressure on the producer.
type FrameProducer interface {
	StartStream(ctx context.Context, count *int) error
	StopStream(ctx context.Context) error
	SubscribeFrames() (<-chan *frame.FrameRef, func())
	RegisterObserver(obs FrameObserver) (unregister func())
}

// ExposureControl is satisfied by cameras with a settable integration time.
// The driver reports the actual (possibly quantised) value it applied.
type ExposureControl interface {
	SetExposure(ctx context.Context, seconds float64) (actual float64, err error)
	GetExposure(ctx context.Context) (float64, error)
}

// Parameterized is satisfied by any driver exposing free-form named knobs
// through an observable.ParameterSet.
type Parameterized interface {
	Parameters() *observable.ParameterSet
}

// WavelengthTunable, ShutterControl, and EmissionControl together model a
// tunable laser. The registry rejects a device exposing EmissionControl
// without ShutterControl (internal/registry); the shutter/emission ordering
// interlock is enforced by DeviceService's SetShutter and SetEmission
// (rpc/deviceservice), not by either interface alone.
type WavelengthTunable interface {
	SetWavelength(ctx context.Context, nm float64) error
	GetWavelength(ctx context.Context) (float64, error)
}

type ShutterControl interface {
	SetShutter(ctx context.Context, open bool) error
	ShutterOpen(ctx context.Context) (bool, error)
}

type EmissionControl interface {
	SetEmission(ctx context.Context, on bool) error
	EmissionOn(ctx context.Context) (bool, error)
}

// Stageable marks a device whose driver offers a settling-window hint used by
// WaitSettled implementations; it is advertised as a capability on its own
// because not every Movable exposes a configurable settle timeout.
type Stageable interface {
	SettlingWindow() time.Duration
}
