package deviceservice

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/events"
	"github.com/easternanemone/rust-daq-sub009/internal/moduleinfo"
	"github.com/easternanemone/rust-daq-sub009/internal/observable"
	"github.com/easternanemone/rust-daq-sub009/internal/ratequota"
	"github.com/easternanemone/rust-daq-sub009/internal/registry"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

// devicePollInterval paces StreamDeviceState and StreamValues, which poll
// driver state rather than reacting to an internal watch channel (motion
// stages and single-value sensors have no Observable of their own — only
// Parameterized drivers do).
const devicePollInterval = 200 * time.Millisecond

// acquireStream reserves a quota slot and registers key in the active-stream
// table, returning a cleanup releasing both exactly once. Quota exhaustion
// is returned as a ResourceExhausted daqerr.
func (s *Server) acquireStream(ip, deviceID string, kind streamKind) (cleanup func(), err error) {
	release, err := s.quota.Acquire(ip)
	if err != nil {
		return nil, err
	}
	key := ratequota.StreamKey{ClientIP: ip, DeviceID: deviceID, Kind: string(kind)}
	return s.trackStream(key, release), nil
}

// StreamParameterChanges fans out every named parameter's watch channel on
// the requested device as ParameterChange messages.
func (s *Server) StreamParameterChanges(req *daqpb.DeviceIDRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	p, err := s.parameterized(req.DeviceID)
	if err != nil {
		return wrapStreamErr(stream, err)
	}
	cleanup, err := s.acquireStream(clientIP(ctx), req.DeviceID, streamKindParameters)
	if err != nil {
		return wrapStreamErr(stream, err)
	}
	defer cleanup()

	stop := make(chan struct{})
	defer close(stop)

	type change struct {
		name string
		data json.RawMessage
	}
	out := make(chan change, 32)
	var wg sync.WaitGroup
	for _, name := range p.Parameters().Names() {
		ch, err := p.Parameters().WatchJSON(name, stop)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(name string, ch <-chan json.RawMessage) {
			defer wg.Done()
			for v := range ch {
				select {
				case out <- change{name, v}:
				case <-stop:
					return
				}
			}
		}(name, ch)
	}
	go func() { wg.Wait(); close(out) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-out:
			if !ok {
				return nil
			}
			msg := &daqpb.ParameterChange{DeviceID: req.DeviceID, Name: c.name, ValueJSON: c.data}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// StreamObservables reports the same fixed {position, reading, parameters}
// observables as StreamDeviceState, but scoped to a single requested device rather than
// every registered one.
func (s *Server) StreamObservables(req *daqpb.DeviceIDRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if _, ok := s.reg.Device(req.DeviceID); !ok {
		return wrapStreamErr(stream, daqerr.New(daqerr.DeviceNotFound, "device %q not found", req.DeviceID))
	}
	cleanup, err := s.acquireStream(clientIP(ctx), req.DeviceID, streamKindObservables)
	if err != nil {
		return wrapStreamErr(stream, err)
	}
	defer cleanup()

	last := make(map[string]string)
	ticker := time.NewTicker(devicePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.pollDeviceState(ctx, stream, req.DeviceID, last); err != nil {
				return err
			}
		}
	}
}

// StreamValues polls the requested device's Readable value at
// devicePollInterval, emitting a DeviceStateUpdate named "value" only when
// it changes since the last poll.
func (s *Server) StreamValues(req *daqpb.DeviceIDRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	r, err := s.readable(req.DeviceID)
	if err != nil {
		return wrapStreamErr(stream, err)
	}
	cleanup, err := s.acquireStream(clientIP(ctx), req.DeviceID, streamKindValues)
	if err != nil {
		return wrapStreamErr(stream, err)
	}
	defer cleanup()

	var last float64
	haveLast := false
	ticker := time.NewTicker(devicePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v, err := r.Read(ctx)
			if err != nil {
				continue
			}
			if haveLast && v == last {
				continue
			}
			haveLast, last = true, v
			data, _ := json.Marshal(v)
			msg := &daqpb.DeviceStateUpdate{DeviceID: req.DeviceID, Name: "value", ValueJSON: data}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// pollDeviceState polls position/reading/parameter observables for one
// device, emitting a DeviceStateUpdate for each whose JSON-encoded value
// differs from its entry in last (keyed "device_id|name").
func (s *Server) pollDeviceState(ctx context.Context, stream grpc.ServerStream, deviceID string, last map[string]string) error {
	emit := func(name string, data []byte) error {
		key := deviceID + "|" + name
		if prev, ok := last[key]; ok && prev == string(data) {
			return nil
		}
		last[key] = string(data)
		return stream.SendMsg(&daqpb.DeviceStateUpdate{DeviceID: deviceID, Name: name, ValueJSON: data})
	}

	if m, ok := registry.GetMovable(s.reg, deviceID); ok {
		if pos, err := m.Position(ctx); err == nil {
			data, _ := json.Marshal(pos)
			if err := emit("position", data); err != nil {
				return err
			}
		}
	}
	if r, ok := registry.GetReadable(s.reg, deviceID); ok {
		if v, err := r.Read(ctx); err == nil {
			data, _ := json.Marshal(v)
			if err := emit("reading", data); err != nil {
				return err
			}
		}
	}
	if p, ok := registry.GetParameterized(s.reg, deviceID); ok {
		var sendErr error
		p.Parameters().Iter(func(name string, obs observable.Erased) {
			if sendErr != nil {
				return
			}
			data, err := obs.GetJSON()
			if err != nil {
				return
			}
			sendErr = emit(name, data)
		})
		if sendErr != nil {
			return sendErr
		}
	}
	return nil
}

// StreamDeviceState polls the fixed {position, reading, parameters} set
// across every registered device (spec.md §6), coalescing so that only a
// changed value since the last poll is emitted.
func (s *Server) StreamDeviceState(req *daqpb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	last := make(map[string]string)
	ticker := time.NewTicker(devicePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, info := range s.reg.ListDevices() {
				if err := s.pollDeviceState(ctx, stream, info.ID, last); err != nil {
					return err
				}
			}
		}
	}
}

// StreamModuleEvents relays every event published on the daemon event bus
// under CategoryModule. The request is empty, so there is no per-module or
// per-device filter.
func (s *Server) StreamModuleEvents(req *daqpb.Empty, stream grpc.ServerStream) error {
	if s.bus == nil {
		return nil
	}
	ctx := stream.Context()
	sub, err := s.bus.Subscribe(64)
	if err != nil {
		return wrapStreamErr(stream, err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if ev.Category != events.CategoryModule {
				continue
			}
			msg := moduleEventToWire(ev)
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func moduleEventToWire(ev events.Event) *daqpb.ModuleEventMessage {
	moduleID := ev.Labels["module_id"]
	message := ev.Labels["message"]
	severity := moduleinfo.SeverityUnknown
	switch ev.Severity {
	case "info":
		severity = moduleinfo.SeverityInfo
	case "warning":
		severity = moduleinfo.SeverityWarning
	case "error":
		severity = moduleinfo.SeverityError
	case "critical":
		severity = moduleinfo.SeverityCritical
	}
	data := make(map[string]string, len(ev.Labels))
	for k, v := range ev.Labels {
		if k == "module_id" || k == "message" {
			continue
		}
		data[k] = v
	}
	return &daqpb.ModuleEventMessage{
		ModuleID:    moduleID,
		EventType:   ev.Type,
		TimestampNs: uint64(ev.Time.UnixNano()),
		Severity:    int32(severity),
		Message:     message,
		Data:        data,
	}
}
