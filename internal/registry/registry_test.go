package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
)

type fakeMovable struct{}

func (fakeMovable) MoveAbs(ctx context.Context, pos float64) error { return nil }
func (fakeMovable) MoveRel(ctx context.Context, d float64) error   { return nil }
func (fakeMovable) Position(ctx context.Context) (float64, error)  { return 0, nil }
func (fakeMovable) WaitSettled(ctx context.Context) error          { return nil }
func (fakeMovable) StopMotion(ctx context.Context) error           { return nil }

type fakeFactory struct {
	driverType string
	caps       []capability.Capability
	build      func(ctx context.Context, cfg driver.Config) (*driver.Components, error)
}

func (f *fakeFactory) DriverType() string                     { return f.driverType }
func (f *fakeFactory) Name() string                            { return "fake-" + f.driverType }
func (f *fakeFactory) Capabilities() []capability.Capability   { return f.caps }
func (f *fakeFactory) Validate(cfg driver.Config) error        { return nil }
func (f *fakeFactory) Build(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
	return f.build(ctx, cfg)
}

func TestRegisterFromConfigThenListDevices(t *testing.T) {
	r := New(nil, nil)
	f := &fakeFactory{
		driverType: "mock-stage",
		caps:       []capability.Capability{capability.Movable},
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{Movable: fakeMovable{}}, nil
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	require.NoError(t, r.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{}))

	devices := r.ListDevices()
	require.Len(t, devices, 1)
	assert.Equal(t, "stage1", devices[0].ID)
	assert.Contains(t, devices[0].Capabilities, capability.Movable)

	m, ok := GetMovable(r, "stage1")
	require.True(t, ok)
	assert.NoError(t, m.MoveAbs(context.Background(), 1.0))
}

func TestRegisterFromConfigUnknownDriverType(t *testing.T) {
	r := New(nil, nil)
	err := r.RegisterFromConfig(context.Background(), "d1", "no-such-driver", driver.Config{})
	require.Error(t, err)
	assert.Equal(t, daqerr.UnknownDriver, daqerr.KindOf(err))
}

func TestRegisterFromConfigEmptyIDRejected(t *testing.T) {
	r := New(nil, nil)
	err := r.RegisterFromConfig(context.Background(), "", "mock-stage", driver.Config{})
	require.Error(t, err)
	assert.Equal(t, daqerr.InvalidConfig, daqerr.KindOf(err))
}

func TestRegisterFromConfigDuplicateIDRejected(t *testing.T) {
	r := New(nil, nil)
	builds := 0
	f := &fakeFactory{
		driverType: "mock-stage",
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			builds++
			return &driver.Components{Movable: fakeMovable{}}, nil
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	require.NoError(t, r.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{}))
	err := r.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{})
	require.Error(t, err)
	assert.Equal(t, daqerr.Duplicate, daqerr.KindOf(err))
	assert.Equal(t, 1, builds, "duplicate id must be rejected before build is called again")
}

func TestRegisterFromConfigBuildFailureDefaultsToInstrument(t *testing.T) {
	r := New(nil, nil)
	f := &fakeFactory{
		driverType: "mock-stage",
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return nil, &fakeErr{}
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	err := r.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{})
	require.Error(t, err)
	assert.Equal(t, daqerr.Instrument, daqerr.KindOf(err))
}

func TestRegisterFromConfigBuildFailurePreservesDriverKind(t *testing.T) {
	r := New(nil, nil)
	f := &fakeFactory{
		driverType: "mock-stage",
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return nil, daqerr.New(daqerr.Communication, "serial port busy")
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	err := r.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{})
	require.Error(t, err)
	assert.Equal(t, daqerr.Communication, daqerr.KindOf(err))
}

func TestEmissionControlWithoutShutterControlRejected(t *testing.T) {
	r := New(nil, nil)
	f := &fakeFactory{
		driverType: "laser",
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{EmissionControl: fakeEmission{}}, nil
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	err := r.RegisterFromConfig(context.Background(), "laser1", "laser", driver.Config{})
	require.Error(t, err)
}

type fakeEmission struct{}

func (fakeEmission) SetEmission(ctx context.Context, on bool) error    { return nil }
func (fakeEmission) EmissionOn(ctx context.Context) (bool, error)      { return false, nil }

type lifecycleSpy struct {
	registered   bool
	unregistered bool
	failRegister bool
}

func (l *lifecycleSpy) OnRegister(ctx context.Context) error {
	l.registered = true
	if l.failRegister {
		return assertErr
	}
	return nil
}
func (l *lifecycleSpy) OnUnregister(ctx context.Context) error {
	l.unregistered = true
	return nil
}

var assertErr = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "boom" }

func TestOnRegisterFailureRollsBackDevice(t *testing.T) {
	r := New(nil, nil)
	lc := &lifecycleSpy{failRegister: true}
	f := &fakeFactory{
		driverType: "mock-stage",
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{Movable: fakeMovable{}, Lifecycle: lc}, nil
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	err := r.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{})
	require.Error(t, err)
	assert.True(t, lc.registered)
	assert.True(t, lc.unregistered)
	assert.Equal(t, daqerr.Instrument, daqerr.KindOf(err))
	assert.Contains(t, err.Error(), "boom")

	_, ok := r.Device("stage1")
	assert.False(t, ok)

	devices := r.ListDevices()
	assert.Empty(t, devices)
}

func TestUnregisterCallsLifecycleAndRemovesFromCapabilityIndex(t *testing.T) {
	r := New(nil, nil)
	lc := &lifecycleSpy{}
	f := &fakeFactory{
		driverType: "mock-stage",
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{Movable: fakeMovable{}, Lifecycle: lc}, nil
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	require.NoError(t, r.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{}))
	require.NoError(t, r.Unregister(context.Background(), "stage1"))
	assert.True(t, lc.unregistered)
	assert.Empty(t, r.DeviceIDsWith(capability.Movable))
}

func TestGetMovableFalseWhenDeviceLacksCapability(t *testing.T) {
	r := New(nil, nil)
	f := &fakeFactory{
		driverType: "sensor",
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{}, nil
		},
	}
	require.NoError(t, r.RegisterFactory(f))
	require.NoError(t, r.RegisterFromConfig(context.Background(), "s1", "sensor", driver.Config{}))
	_, ok := GetMovable(r, "s1")
	assert.False(t, ok)
}

func TestDriverTypesSorted(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.RegisterFactory(&fakeFactory{driverType: "zeta"}))
	require.NoError(t, r.RegisterFactory(&fakeFactory{driverType: "alpha"}))
	assert.Equal(t, []string{"alpha", "zeta"}, r.DriverTypes())
}

