package deviceservice

import (
	"context"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/registry"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

func hasAll(have []capability.Capability, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[string(c)] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func toWireDeviceInfo(info registry.DeviceInfo) daqpb.DeviceInfo {
	has := func(c capability.Capability) bool {
		for _, got := range info.Capabilities {
			if got == c {
				return true
			}
		}
		return false
	}
	return daqpb.DeviceInfo{
		ID:                     info.ID,
		Name:                   info.Name,
		DriverType:             info.DriverType,
		IsMovable:              has(capability.Movable),
		IsReadable:             has(capability.Readable),
		IsTriggerable:          has(capability.Triggerable),
		IsFrameProducer:        has(capability.FrameProducer),
		IsWavelengthTunable:    has(capability.WavelengthTunable),
		IsShutterControllable:  has(capability.ShutterControl),
		IsEmissionControllable: has(capability.EmissionControl),
		PositionUnits:          info.PositionUnits,
		ReadingUnits:           info.ReadingUnits,
		MinPosition:            info.MinPosition,
		MaxPosition:            info.MaxPosition,
	}
}

// ListDevices projects every registered device, optionally filtered to
// those advertising every capability named in req.Capabilities.
func (s *Server) ListDevices(ctx context.Context, req *daqpb.ListDevicesRequest) (*daqpb.ListDevicesResponse, error) {
	all := s.reg.ListDevices()
	out := make([]daqpb.DeviceInfo, 0, len(all))
	for _, info := range all {
		if len(req.Capabilities) > 0 && !hasAll(info.Capabilities, req.Capabilities) {
			continue
		}
		out = append(out, toWireDeviceInfo(info))
	}
	return &daqpb.ListDevicesResponse{Devices: out}, nil
}

func (s *Server) MoveAbs(ctx context.Context, req *daqpb.MoveAbsRequest) (*daqpb.Empty, error) {
	m, err := s.movable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := m.MoveAbs(ctx, req.Position); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) MoveRel(ctx context.Context, req *daqpb.MoveRelRequest) (*daqpb.Empty, error) {
	m, err := s.movable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := m.MoveRel(ctx, req.Delta); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) StopMotion(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.Empty, error) {
	m, err := s.movable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := m.StopMotion(ctx); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) WaitSettled(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.Empty, error) {
	m, err := s.movable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := m.WaitSettled(ctx); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) Position(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.PositionResponse, error) {
	m, err := s.movable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	pos, err := m.Position(ctx)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.PositionResponse{Position: pos}, nil
}

func (s *Server) ReadValue(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.ReadValueResponse, error) {
	r, err := s.readable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	v, err := r.Read(ctx)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	rec, _ := s.reg.Device(req.DeviceID)
	units := ""
	if rec != nil {
		units = rec.Components.ReadingUnits
	}
	return &daqpb.ReadValueResponse{Value: v, ReadingUnits: units}, nil
}

func (s *Server) ArmTrigger(ctx context.Context, req *daqpb.ArmTriggerRequest) (*daqpb.Empty, error) {
	t, err := s.triggerable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	cfg := capability.TriggerConfig{Mode: req.Mode, DelayNs: req.DelayNs, Parameters: req.Parameters}
	if err := t.Arm(ctx, cfg); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) Fire(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.Empty, error) {
	t, err := s.triggerable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := t.Fire(ctx); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) Disarm(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.Empty, error) {
	t, err := s.triggerable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := t.Disarm(ctx); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) StartStream(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.Empty, error) {
	f, err := s.frameProducer(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := f.StartStream(ctx, nil); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) StopStream(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.Empty, error) {
	f, err := s.frameProducer(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := f.StopStream(ctx); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) SetExposure(ctx context.Context, req *daqpb.SetExposureRequest) (*daqpb.SetExposureResponse, error) {
	e, err := s.exposureControl(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	actual, err := e.SetExposure(ctx, req.Seconds)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.SetExposureResponse{ActualSeconds: actual}, nil
}

func (s *Server) GetExposure(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.GetExposureResponse, error) {
	e, err := s.exposureControl(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	secs, err := e.GetExposure(ctx)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.GetExposureResponse{Seconds: secs}, nil
}

func (s *Server) SetWavelength(ctx context.Context, req *daqpb.SetWavelengthRequest) (*daqpb.Empty, error) {
	w, err := s.wavelengthTunable(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := w.SetWavelength(ctx, req.Nm); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

// SetShutter requires emission to already be on before permitting the
// shutter to open, mirroring the registry's build-time interlock invariant
// (EmissionControl implies ShutterControl) at the call boundary too: opening
// the shutter while emission is off must never succeed.
func (s *Server) SetShutter(ctx context.Context, req *daqpb.SetShutterRequest) (*daqpb.Empty, error) {
	sc, err := s.shutterControl(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if req.Open {
		ec, err := s.emissionControl(req.DeviceID)
		if err != nil {
			return nil, wrapErr(ctx, err)
		}
		on, err := ec.EmissionOn(ctx)
		if err != nil {
			return nil, wrapErr(ctx, err)
		}
		if !on {
			return nil, wrapErr(ctx, daqerr.New(daqerr.InvalidState, "device %q: refusing to open shutter with emission off", req.DeviceID))
		}
	}
	if err := sc.SetShutter(ctx, req.Open); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

// SetEmission closes the shutter first when emission is disabled, so a
// caller can never observe emission off with the shutter still open.
func (s *Server) SetEmission(ctx context.Context, req *daqpb.SetEmissionRequest) (*daqpb.Empty, error) {
	ec, err := s.emissionControl(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if !req.On {
		sc, err := s.shutterControl(req.DeviceID)
		if err != nil {
			return nil, wrapErr(ctx, err)
		}
		open, err := sc.ShutterOpen(ctx)
		if err != nil {
			return nil, wrapErr(ctx, err)
		}
		if open {
			if err := sc.SetShutter(ctx, false); err != nil {
				return nil, wrapErr(ctx, err)
			}
		}
	}
	if err := ec.SetEmission(ctx, req.On); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}

func (s *Server) DescribeDriver(ctx context.Context, req *daqpb.DescribeDriverRequest) (*daqpb.DescribeDriverResponse, error) {
	f, ok := s.reg.Factory(req.DriverType)
	if !ok {
		return nil, wrapErr(ctx, daqerr.New(daqerr.UnknownDriver, "unknown driver type %q", req.DriverType))
	}
	caps := make([]string, 0, len(f.Capabilities()))
	for _, c := range f.Capabilities() {
		caps = append(caps, string(c))
	}
	return &daqpb.DescribeDriverResponse{DriverType: req.DriverType, Name: f.Name(), Capabilities: caps}, nil
}
