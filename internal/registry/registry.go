// Package registry implements the device registry (C7): device factories
// keyed by driver type, live device records keyed by device ID, and a
// capability index for O(1) typed lookups. Lock tiering (factories <
// devices < capabilityIndex, always acquired in that order) and the
// sharded-map shape are grounded on engine/internal/ratelimit/limiter.go's
// domainShard pattern in the teacher repo, adapted from a striped hash map
// to a small number of named top-level locks since the registry's working
// set (devices, not per-request domains) does not benefit from striping.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
	"github.com/easternanemone/rust-daq-sub009/internal/events"
	"github.com/easternanemone/rust-daq-sub009/internal/obslog"
)

// DeviceRecord is a live, registered device: its factory-produced
// components plus the metadata needed to answer ListDevices without
// consulting the driver.
type DeviceRecord struct {
	ID         string
	DriverType string
	Name       string
	Components *driver.Components
}

// DeviceInfo is the read-only projection of a DeviceRecord returned by
// ListDevices (spec.md §4.7 / §6's DeviceInfo wire message).
type DeviceInfo struct {
	ID            string
	DriverType    string
	Name          string
	Capabilities  []capability.Capability
	PositionUnits string
	ReadingUnits  string
	MinPosition   *float64
	MaxPosition   *float64
}

// Registry owns device factories, live device records, and the derived
// capability index. Three locks are acquired, when more than one is needed,
// strictly in this order: factoriesMu < devicesMu < capMu. Violating this
// order anywhere in the package is a deadlock bug.
type Registry struct {
	logger obslog.Logger
	bus    events.Bus

	factoriesMu sync.RWMutex
	factories   map[string]driver.Factory // by DriverType()

	devicesMu sync.RWMutex
	devices   map[string]*DeviceRecord // by device ID

	capMu sync.RWMutex
	capIndex map[capability.Capability]map[string]struct{} // capability -> device IDs
}

// New builds an empty Registry. bus may be nil (events are dropped).
func New(logger obslog.Logger, bus events.Bus) *Registry {
	if logger == nil {
		logger = obslog.New(nil)
	}
	r := &Registry{
		logger:    logger,
		bus:       bus,
		factories: make(map[string]driver.Factory),
		devices:   make(map[string]*DeviceRecord),
		capIndex:  make(map[capability.Capability]map[string]struct{}),
	}
	for _, c := range capability.All {
		r.capIndex[c] = make(map[string]struct{})
	}
	return r
}

// RegisterFactory adds a driver factory under its own DriverType(). A
// duplicate DriverType is rejected.
func (r *Registry) RegisterFactory(f driver.Factory) error {
	r.factoriesMu.Lock()
	defer r.factoriesMu.Unlock()
	dt := f.DriverType()
	if _, exists := r.factories[dt]; exists {
		return daqerr.New(daqerr.Duplicate, "driver type %q already registered", dt)
	}
	r.factories[dt] = f
	return nil
}

// DriverTypes lists every registered factory's driver type, for
// DescribeDriver enumeration.
func (r *Registry) DriverTypes() []string {
	r.factoriesMu.RLock()
	defer r.factoriesMu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for dt := range r.factories {
		out = append(out, dt)
	}
	sort.Strings(out)
	return out
}

// Factory returns the factory for driverType, if registered.
func (r *Registry) Factory(driverType string) (driver.Factory, bool) {
	r.factoriesMu.RLock()
	defer r.factoriesMu.RUnlock()
	f, ok := r.factories[driverType]
	return f, ok
}

// RegisterFromConfig runs the full validate -> build -> insert -> on_register
// flow from spec.md §4.7. On an on_register failure, the just-inserted
// record is removed and (best-effort) OnUnregister is invoked before the
// error is returned, so a half-registered device is never left visible.
func (r *Registry) RegisterFromConfig(ctx context.Context, id, driverType string, cfg driver.Config) error {
	if id == "" {
		return daqerr.New(daqerr.InvalidConfig, "device id must not be empty")
	}

	r.devicesMu.RLock()
	_, exists := r.devices[id]
	r.devicesMu.RUnlock()
	if exists {
		return daqerr.New(daqerr.Duplicate, "device %q already registered", id)
	}

	f, ok := r.Factory(driverType)
	if !ok {
		return daqerr.New(daqerr.UnknownDriver, "unknown driver type %q", driverType)
	}

	if err := f.Validate(cfg); err != nil {
		return daqerr.Wrap(daqerr.InvalidConfig, err, "validating config for device %q", id)
	}

	components, err := f.Build(ctx, cfg)
	if err != nil {
		kind := daqerr.Instrument
		if e, ok := daqerr.As(err); ok {
			kind = e.Kind
		}
		return daqerr.Wrap(kind, err, "building device %q", id)
	}

	if err := r.checkInterlocks(components); err != nil {
		return err
	}

	record := &DeviceRecord{ID: id, DriverType: driverType, Name: f.Name(), Components: components}

	r.devicesMu.Lock()
	if _, exists := r.devices[id]; exists {
		r.devicesMu.Unlock()
		return daqerr.New(daqerr.Duplicate, "device %q already registered", id)
	}
	r.devices[id] = record
	r.devicesMu.Unlock()

	r.indexCapabilities(id, components.Capabilities())

	if components.Lifecycle != nil {
		if err := components.Lifecycle.OnRegister(ctx); err != nil {
			r.removeDevice(id)
			_ = components.Lifecycle.OnUnregister(ctx)
			return daqerr.Wrap(daqerr.Instrument, err, "on_register hook failed for device %q", id)
		}
	}

	r.publish(ctx, "device_registered", id)
	r.logger.InfoCtx(ctx, "registry: device registered", "device_id", id, "driver_type", driverType)
	return nil
}

// Unregister removes a device, calling its Lifecycle.OnUnregister hook
// (best-effort — the device is removed regardless of hook failure).
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.devicesMu.RLock()
	record, ok := r.devices[id]
	r.devicesMu.RUnlock()
	if !ok {
		return daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}

	r.removeDevice(id)

	if record.Components.Lifecycle != nil {
		if err := record.Components.Lifecycle.OnUnregister(ctx); err != nil {
			r.logger.WarnCtx(ctx, "registry: on_unregister hook failed", "device_id", id, "error", err.Error())
		}
	}

	r.publish(ctx, "device_unregistered", id)
	return nil
}

func (r *Registry) removeDevice(id string) {
	r.devicesMu.Lock()
	record, ok := r.devices[id]
	delete(r.devices, id)
	r.devicesMu.Unlock()
	if !ok {
		return
	}

	r.capMu.Lock()
	for _, c := range record.Components.Capabilities() {
		delete(r.capIndex[c], id)
	}
	r.capMu.Unlock()
}

func (r *Registry) indexCapabilities(id string, caps []capability.Capability) {
	r.capMu.Lock()
	defer r.capMu.Unlock()
	for _, c := range caps {
		r.capIndex[c][id] = struct{}{}
	}
}

// checkInterlocks enforces the laser interlock invariant: a device
// advertising EmissionControl MUST also advertise ShutterControl, since
// DeviceService.SetEmission(true) without a known shutter state is unsafe
// (spec.md §4.7's cross-capability invariant note).
func (r *Registry) checkInterlocks(c *driver.Components) error {
	if c.EmissionControl != nil && c.ShutterControl == nil {
		return daqerr.New(daqerr.InvalidConfig,
			"device exposes EmissionControl without ShutterControl: interlock invariant violated")
	}
	return nil
}

// ListDevices returns a projection of every registered device, sorted by ID.
func (r *Registry) ListDevices() []DeviceInfo {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()
	out := make([]DeviceInfo, 0, len(r.devices))
	for _, rec := range r.devices {
		out = append(out, DeviceInfo{
			ID:            rec.ID,
			DriverType:    rec.DriverType,
			Name:          rec.Name,
			Capabilities:  rec.Components.Capabilities(),
			PositionUnits: rec.Components.PositionUnits,
			ReadingUnits:  rec.Components.ReadingUnits,
			MinPosition:   rec.Components.MinPosition,
			MaxPosition:   rec.Components.MaxPosition,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Device returns the raw record for id, if present.
func (r *Registry) Device(id string) (*DeviceRecord, bool) {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()
	rec, ok := r.devices[id]
	return rec, ok
}

// DeviceIDsWith returns every device ID currently indexed under capability c.
func (r *Registry) DeviceIDsWith(c capability.Capability) []string {
	r.capMu.RLock()
	defer r.capMu.RUnlock()
	out := make([]string, 0, len(r.capIndex[c]))
	for id := range r.capIndex[c] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) publish(ctx context.Context, eventType, deviceID string) {
	if r.bus == nil {
		return
	}
	r.bus.PublishCtx(ctx, events.Event{
		Category: events.CategoryRegistry,
		Type:     eventType,
		Labels:   map[string]string{"device_id": deviceID},
	})
}

// typedLookup is the generic accessor underlying GetMovable, GetReadable,
// etc: it checks the device exists, then type-asserts the requested
// capability slot. The bool result distinguishes "device not found" from
// "device found but lacks this capability" only insofar as both return
// false with a zero value — callers needing to distinguish the two should
// use Device(id) directly.
func typedLookup[T any](r *Registry, id string, pick func(*driver.Components) T) (T, bool) {
	var zero T
	rec, ok := r.Device(id)
	if !ok {
		return zero, false
	}
	v := pick(rec.Components)
	return v, !isNilInterface(v)
}

// GetMovable returns the device's Movable handle, if it has one.
func GetMovable(r *Registry, id string) (capability.Movable, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.Movable { return c.Movable })
}

// GetReadable returns the device's Readable handle, if it has one.
func GetReadable(r *Registry, id string) (capability.Readable, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.Readable { return c.Readable })
}

// GetTriggerable returns the device's Triggerable handle, if it has one.
func GetTriggerable(r *Registry, id string) (capability.Triggerable, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.Triggerable { return c.Triggerable })
}

// GetFrameProducer returns the device's FrameProducer handle, if it has one.
func GetFrameProducer(r *Registry, id string) (capability.FrameProducer, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.FrameProducer { return c.FrameProducer })
}

// GetExposureControl returns the device's ExposureControl handle, if it has one.
func GetExposureControl(r *Registry, id string) (capability.ExposureControl, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.ExposureControl { return c.ExposureControl })
}

// GetParameterized returns the device's Parameterized handle, if it has one.
func GetParameterized(r *Registry, id string) (capability.Parameterized, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.Parameterized { return c.Parameterized })
}

// GetWavelengthTunable returns the device's WavelengthTunable handle, if it has one.
func GetWavelengthTunable(r *Registry, id string) (capability.WavelengthTunable, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.WavelengthTunable { return c.WavelengthTunable })
}

// GetShutterControl returns the device's ShutterControl handle, if it has one.
func GetShutterControl(r *Registry, id string) (capability.ShutterControl, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.ShutterControl { return c.ShutterControl })
}

// GetEmissionControl returns the device's EmissionControl handle, if it has one.
func GetEmissionControl(r *Registry, id string) (capability.EmissionControl, bool) {
	return typedLookup(r, id, func(c *driver.Components) capability.EmissionControl { return c.EmissionControl })
}

// isNilInterface reports whether v, the zero value of an interface-typed T,
// is the nil interface. Every call site instantiates T with one of the
// capability package's interfaces, so this never has to reason about
// zero values of concrete (non-interface) types.
func isNilInterface[T any](v T) bool {
	return any(v) == nil
}
