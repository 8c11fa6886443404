// Package deviceservice implements daqpb.DeviceServiceServer (C8) against
// the device registry, the reactive parameter/observable layer, and the
// frame ring buffer / Tee data plane. Method dispatch follows the same
// decode -> validate -> call -> wrap-error shape as
// engine/internal/api/handlers.go in the teacher repo, adapted from HTTP
// JSON handlers to gRPC unary/streaming methods.
package deviceservice

import (
	"context"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/events"
	"github.com/easternanemone/rust-daq-sub009/internal/health"
	"github.com/easternanemone/rust-daq-sub009/internal/obslog"
	"github.com/easternanemone/rust-daq-sub009/internal/ratequota"
	"github.com/easternanemone/rust-daq-sub009/internal/registry"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

// streamKind tags which of the six server-streaming methods an active
// stream belongs to, for the (client_ip, device_id, stream_kind) tracking
// key spec.md §4.8 requires for quota accounting.
type streamKind string

const (
	streamKindFrames       streamKind = "frames"
	streamKindParameters   streamKind = "parameters"
	streamKindObservables  streamKind = "observables"
	streamKindValues       streamKind = "values"
	streamKindDeviceState  streamKind = "device_state"
	streamKindModuleEvents streamKind = "module_events"
)

// Server implements daqpb.DeviceServiceServer.
type Server struct {
	logger  obslog.Logger
	reg     *registry.Registry
	quota   *ratequota.Quota
	bus     events.Bus
	monitor *health.Monitor

	mu     sync.Mutex
	active map[ratequota.StreamKey]func()
}

// New builds a Server. bus and monitor may be nil.
func New(logger obslog.Logger, reg *registry.Registry, quota *ratequota.Quota, bus events.Bus, monitor *health.Monitor) *Server {
	if logger == nil {
		logger = obslog.New(nil)
	}
	return &Server{
		logger:  logger,
		reg:     reg,
		quota:   quota,
		bus:     bus,
		monitor: monitor,
		active:  make(map[ratequota.StreamKey]func()),
	}
}

var _ daqpb.DeviceServiceServer = (*Server)(nil)

// wrapErr converts a daqerr-classified error into a gRPC status carrying the
// x-daq-error-kind trailer metadata (spec.md §7). Unclassified errors are
// reported as Internal, same as daqerr.KindOf's fallback.
func wrapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	kind := daqerr.KindOf(err)
	grpcCode := daqerr.New(kind, "").Code()
	_ = grpc.SetTrailer(ctx, metadata.Pairs(daqerr.MetadataKey, string(kind)))
	return status.Error(grpcCode, err.Error())
}

// wrapStreamErr is wrapErr's counterpart for server-streaming RPCs, which
// attach trailer metadata directly to the stream instead of via context.
func wrapStreamErr(stream grpc.ServerStream, err error) error {
	if err == nil {
		return nil
	}
	kind := daqerr.KindOf(err)
	grpcCode := daqerr.New(kind, "").Code()
	stream.SetTrailer(metadata.Pairs(daqerr.MetadataKey, string(kind)))
	return status.Error(grpcCode, err.Error())
}

// clientIP extracts the caller's IP (the peer address without its port) from
// ctx's peer info, falling back to "unknown" so quota accounting always has a
// non-empty key.
func clientIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *Server) movable(id string) (capability.Movable, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	m, ok := registry.GetMovable(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) is not Movable", id, rec.DriverType)
	}
	return m, nil
}

func (s *Server) readable(id string) (capability.Readable, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	r, ok := registry.GetReadable(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) is not Readable", id, rec.DriverType)
	}
	return r, nil
}

func (s *Server) triggerable(id string) (capability.Triggerable, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	t, ok := registry.GetTriggerable(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) is not Triggerable", id, rec.DriverType)
	}
	return t, nil
}

func (s *Server) frameProducer(id string) (capability.FrameProducer, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	f, ok := registry.GetFrameProducer(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) is not a FrameProducer", id, rec.DriverType)
	}
	return f, nil
}

func (s *Server) exposureControl(id string) (capability.ExposureControl, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	e, ok := registry.GetExposureControl(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) has no ExposureControl", id, rec.DriverType)
	}
	return e, nil
}

func (s *Server) parameterized(id string) (capability.Parameterized, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	p, ok := registry.GetParameterized(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) is not Parameterized", id, rec.DriverType)
	}
	return p, nil
}

func (s *Server) wavelengthTunable(id string) (capability.WavelengthTunable, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	w, ok := registry.GetWavelengthTunable(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) is not WavelengthTunable", id, rec.DriverType)
	}
	return w, nil
}

func (s *Server) shutterControl(id string) (capability.ShutterControl, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	sc, ok := registry.GetShutterControl(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) has no ShutterControl", id, rec.DriverType)
	}
	return sc, nil
}

func (s *Server) emissionControl(id string) (capability.EmissionControl, error) {
	rec, ok := s.reg.Device(id)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "device %q not found", id)
	}
	ec, ok := registry.GetEmissionControl(s.reg, id)
	if !ok {
		return nil, daqerr.New(daqerr.CapabilityUnsupported, "device %q (%s) has no EmissionControl", id, rec.DriverType)
	}
	return ec, nil
}

// trackStream registers release under key, evicting and calling any
// previous release func for the same key (a reconnect without a clean
// close). Callers defer the returned cleanup, which removes the entry and
// invokes release.
func (s *Server) trackStream(key ratequota.StreamKey, release func()) (cleanup func()) {
	s.mu.Lock()
	if prev, ok := s.active[key]; ok {
		prev()
	}
	s.active[key] = release
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.active, key)
		s.mu.Unlock()
		release()
	}
}
