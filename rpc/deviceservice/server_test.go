package deviceservice

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
	"github.com/easternanemone/rust-daq-sub009/internal/observable"
	"github.com/easternanemone/rust-daq-sub009/internal/ratequota"
	"github.com/easternanemone/rust-daq-sub009/internal/registry"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

type fakeMovable struct{ pos float64 }

func (f *fakeMovable) MoveAbs(ctx context.Context, p float64) error { f.pos = p; return nil }
func (f *fakeMovable) MoveRel(ctx context.Context, d float64) error { f.pos += d; return nil }
func (f *fakeMovable) Position(ctx context.Context) (float64, error) { return f.pos, nil }
func (f *fakeMovable) WaitSettled(ctx context.Context) error         { return nil }
func (f *fakeMovable) StopMotion(ctx context.Context) error          { return nil }

type fakeShutter struct{ open bool }

func (f *fakeShutter) SetShutter(ctx context.Context, open bool) error { f.open = open; return nil }
func (f *fakeShutter) ShutterOpen(ctx context.Context) (bool, error)   { return f.open, nil }

type fakeEmission struct{ on bool }

func (f *fakeEmission) SetEmission(ctx context.Context, on bool) error { f.on = on; return nil }
func (f *fakeEmission) EmissionOn(ctx context.Context) (bool, error)   { return f.on, nil }

type fakeParameterized struct{ set *observable.ParameterSet }

func (f *fakeParameterized) Parameters() *observable.ParameterSet { return f.set }

func movableFactory(id string) *fakeFactory {
	return &fakeFactory{
		driverType: id,
		caps:       []capability.Capability{capability.Movable},
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{Movable: &fakeMovable{}, PositionUnits: "mm"}, nil
		},
	}
}

type fakeFactory struct {
	driverType string
	caps       []capability.Capability
	build      func(context.Context, driver.Config) (*driver.Components, error)
}

func (f *fakeFactory) DriverType() string                      { return f.driverType }
func (f *fakeFactory) Name() string                             { return f.driverType }
func (f *fakeFactory) Capabilities() []capability.Capability    { return f.caps }
func (f *fakeFactory) Validate(cfg driver.Config) error         { return nil }
func (f *fakeFactory) Build(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
	return f.build(ctx, cfg)
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, nil)
	quota := ratequota.New(4, 30)
	t.Cleanup(quota.Close)
	return New(nil, reg, quota, nil, nil), reg
}

func TestListDevicesFiltersByCapability(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.RegisterFactory(movableFactory("mock-stage")))
	require.NoError(t, reg.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{}))

	resp, err := s.ListDevices(context.Background(), &daqpb.ListDevicesRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Devices, 1)
	assert.True(t, resp.Devices[0].IsMovable)
	assert.Equal(t, "mm", resp.Devices[0].PositionUnits)

	resp, err = s.ListDevices(context.Background(), &daqpb.ListDevicesRequest{Capabilities: []string{"Readable"}})
	require.NoError(t, err)
	assert.Len(t, resp.Devices, 0)
}

func TestMoveAbsAndPositionRoundTrip(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.RegisterFactory(movableFactory("mock-stage")))
	require.NoError(t, reg.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{}))

	_, err := s.MoveAbs(context.Background(), &daqpb.MoveAbsRequest{DeviceID: "stage1", Position: 12.5})
	require.NoError(t, err)

	resp, err := s.Position(context.Background(), &daqpb.DeviceIDRequest{DeviceID: "stage1"})
	require.NoError(t, err)
	assert.Equal(t, 12.5, resp.Position)
}

func TestMoveAbsUnknownDeviceReturnsNotFoundWithKindTrailer(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.MoveAbs(context.Background(), &daqpb.MoveAbsRequest{DeviceID: "ghost", Position: 1})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
}

func TestCapabilityUnsupportedReturnsFailedPrecondition(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.RegisterFactory(movableFactory("mock-stage")))
	require.NoError(t, reg.RegisterFromConfig(context.Background(), "stage1", "mock-stage", driver.Config{}))

	_, err := s.ReadValue(context.Background(), &daqpb.DeviceIDRequest{DeviceID: "stage1"})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
}

func TestSetShutterRefusedWithEmissionOff(t *testing.T) {
	s, reg := newTestServer(t)
	f := &fakeFactory{
		driverType: "mock-laser",
		caps:       []capability.Capability{capability.ShutterControl, capability.EmissionControl},
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{ShutterControl: &fakeShutter{}, EmissionControl: &fakeEmission{}}, nil
		},
	}
	require.NoError(t, reg.RegisterFactory(f))
	require.NoError(t, reg.RegisterFromConfig(context.Background(), "laser1", "mock-laser", driver.Config{}))

	_, err := s.SetShutter(context.Background(), &daqpb.SetShutterRequest{DeviceID: "laser1", Open: true})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
}

func TestSetEmissionOffClosesShutter(t *testing.T) {
	s, reg := newTestServer(t)
	shutter := &fakeShutter{}
	f := &fakeFactory{
		driverType: "mock-laser",
		caps:       []capability.Capability{capability.ShutterControl, capability.EmissionControl},
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{ShutterControl: shutter, EmissionControl: &fakeEmission{}}, nil
		},
	}
	require.NoError(t, reg.RegisterFactory(f))
	require.NoError(t, reg.RegisterFromConfig(context.Background(), "laser1", "mock-laser", driver.Config{}))

	_, err := s.SetEmission(context.Background(), &daqpb.SetEmissionRequest{DeviceID: "laser1", On: true})
	require.NoError(t, err)

	_, err = s.SetShutter(context.Background(), &daqpb.SetShutterRequest{DeviceID: "laser1", Open: true})
	require.NoError(t, err)
	require.True(t, shutter.open)

	_, err = s.SetEmission(context.Background(), &daqpb.SetEmissionRequest{DeviceID: "laser1", On: false})
	require.NoError(t, err)
	require.False(t, shutter.open)
}

func TestGetSetParameterRoundTrip(t *testing.T) {
	s, reg := newTestServer(t)
	set := observable.NewParameterSet()
	obs := observable.New[float64]("gain", 1.0, "f64")
	require.NoError(t, set.Register(obs))

	f := &fakeFactory{
		driverType: "mock-param",
		caps:       []capability.Capability{capability.Parameterized},
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{Parameterized: &fakeParameterized{set: set}}, nil
		},
	}
	require.NoError(t, reg.RegisterFactory(f))
	require.NoError(t, reg.RegisterFromConfig(context.Background(), "dev1", "mock-param", driver.Config{}))

	_, err := s.SetParameter(context.Background(), &daqpb.SetParameterRequest{DeviceID: "dev1", Name: "gain", ValueJSON: []byte("2.5")})
	require.NoError(t, err)

	resp, err := s.GetParameter(context.Background(), &daqpb.GetParameterRequest{DeviceID: "dev1", Name: "gain"})
	require.NoError(t, err)
	var got float64
	require.NoError(t, json.Unmarshal(resp.ValueJSON, &got))
	assert.Equal(t, 2.5, got)
}

func TestDescribeDriverUnknownType(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.DescribeDriver(context.Background(), &daqpb.DescribeDriverRequest{DriverType: "nope"})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
}

// fakeServerStream is a minimal grpc.ServerStream used to exercise streaming
// handlers without a real transport. Only Context and SendMsg are exercised.
type fakeServerStream struct {
	ctx  context.Context
	sent chan any
	md   metadata.MD
}

func newFakeServerStream(ctx context.Context) *fakeServerStream {
	return &fakeServerStream{ctx: ctx, sent: make(chan any, 64)}
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(md metadata.MD)    { f.md = md }
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(m any) error {
	select {
	case f.sent <- m:
		return nil
	default:
		return nil
	}
}
func (f *fakeServerStream) RecvMsg(m any) error { return nil }

func TestStreamValuesEmitsOnChangeOnly(t *testing.T) {
	s, reg := newTestServer(t)
	readings := []float64{1.0, 1.0, 2.0}
	i := 0
	f := &fakeFactory{
		driverType: "mock-sensor",
		caps:       []capability.Capability{capability.Readable},
		build: func(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
			return &driver.Components{Readable: readableFunc(func(ctx context.Context) (float64, error) {
				v := readings[i]
				if i < len(readings)-1 {
					i++
				}
				return v, nil
			})}, nil
		},
	}
	require.NoError(t, reg.RegisterFactory(f))
	require.NoError(t, reg.RegisterFromConfig(context.Background(), "sensor1", "mock-sensor", driver.Config{}))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	stream := newFakeServerStream(ctx)

	_ = s.StreamValues(&daqpb.DeviceIDRequest{DeviceID: "sensor1"}, stream)

	close(stream.sent)
	var updates []*daqpb.DeviceStateUpdate
	for m := range stream.sent {
		updates = append(updates, m.(*daqpb.DeviceStateUpdate))
	}
	require.NotEmpty(t, updates)
	var first float64
	require.NoError(t, json.Unmarshal(updates[0].ValueJSON, &first))
	assert.Equal(t, 1.0, first)
	for j := 1; j < len(updates); j++ {
		assert.NotEqual(t, string(updates[j-1].ValueJSON), string(updates[j].ValueJSON))
	}
}

type readableFunc func(ctx context.Context) (float64, error)

func (f readableFunc) Read(ctx context.Context) (float64, error) { return f(ctx) }
