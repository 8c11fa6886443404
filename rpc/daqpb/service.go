package daqpb

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name every method and
// stream path is rooted under.
const ServiceName = "daq.v1.DeviceService"

// DeviceServiceServer is the interface a concrete implementation
// (rpc/deviceservice) satisfies. Unary methods take a context and request
// and return a response or error; streaming methods are handed the raw
// grpc.ServerStream since this service hand-rolls its ServiceDesc instead
// of generating typed streaming server interfaces via protoc.
type DeviceServiceServer interface {
	ListDevices(ctx context.Context, req *ListDevicesRequest) (*ListDevicesResponse, error)
	MoveAbs(ctx context.Context, req *MoveAbsRequest) (*Empty, error)
	MoveRel(ctx context.Context, req *MoveRelRequest) (*Empty, error)
	StopMotion(ctx context.Context, req *DeviceIDRequest) (*Empty, error)
	WaitSettled(ctx context.Context, req *DeviceIDRequest) (*Empty, error)
	Position(ctx context.Context, req *DeviceIDRequest) (*PositionResponse, error)
	ReadValue(ctx context.Context, req *DeviceIDRequest) (*ReadValueResponse, error)
	ArmTrigger(ctx context.Context, req *ArmTriggerRequest) (*Empty, error)
	Fire(ctx context.Context, req *DeviceIDRequest) (*Empty, error)
	Disarm(ctx context.Context, req *DeviceIDRequest) (*Empty, error)
	StartStream(ctx context.Context, req *DeviceIDRequest) (*Empty, error)
	StopStream(ctx context.Context, req *DeviceIDRequest) (*Empty, error)
	ListParameters(ctx context.Context, req *DeviceIDRequest) (*ListParametersResponse, error)
	GetParameter(ctx context.Context, req *GetParameterRequest) (*GetParameterResponse, error)
	SetParameter(ctx context.Context, req *SetParameterRequest) (*Empty, error)
	SetExposure(ctx context.Context, req *SetExposureRequest) (*SetExposureResponse, error)
	GetExposure(ctx context.Context, req *DeviceIDRequest) (*GetExposureResponse, error)
	SetWavelength(ctx context.Context, req *SetWavelengthRequest) (*Empty, error)
	SetShutter(ctx context.Context, req *SetShutterRequest) (*Empty, error)
	SetEmission(ctx context.Context, req *SetEmissionRequest) (*Empty, error)
	DescribeDriver(ctx context.Context, req *DescribeDriverRequest) (*DescribeDriverResponse, error)

	StreamFrames(req *StreamFramesRequest, stream grpc.ServerStream) error
	StreamParameterChanges(req *DeviceIDRequest, stream grpc.ServerStream) error
	StreamObservables(req *DeviceIDRequest, stream grpc.ServerStream) error
	StreamValues(req *DeviceIDRequest, stream grpc.ServerStream) error
	StreamDeviceState(req *Empty, stream grpc.ServerStream) error
	StreamModuleEvents(req *Empty, stream grpc.ServerStream) error
}

func unaryHandler[Req any, Resp any](call func(DeviceServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		impl := srv.(DeviceServiceServer)
		if interceptor == nil {
			return call(impl, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(impl, ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

func streamHandler[Req any](streamName string, call func(DeviceServiceServer, *Req, grpc.ServerStream) error) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		req := new(Req)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		return call(srv.(DeviceServiceServer), req, stream)
	}
}

// ServiceDesc is registered with a *grpc.Server via RegisterDeviceService.
// It is hand-built against grpc.ServiceDesc/grpc.MethodDesc/grpc.StreamDesc
// rather than emitted by protoc-gen-go-grpc, since the Go toolchain is
// never invoked in this environment — see DESIGN.md.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeviceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDevices", Handler: unaryHandler(DeviceServiceServer.ListDevices)},
		{MethodName: "MoveAbs", Handler: unaryHandler(DeviceServiceServer.MoveAbs)},
		{MethodName: "MoveRel", Handler: unaryHandler(DeviceServiceServer.MoveRel)},
		{MethodName: "StopMotion", Handler: unaryHandler(DeviceServiceServer.StopMotion)},
		{MethodName: "WaitSettled", Handler: unaryHandler(DeviceServiceServer.WaitSettled)},
		{MethodName: "Position", Handler: unaryHandler(DeviceServiceServer.Position)},
		{MethodName: "ReadValue", Handler: unaryHandler(DeviceServiceServer.ReadValue)},
		{MethodName: "ArmTrigger", Handler: unaryHandler(DeviceServiceServer.ArmTrigger)},
		{MethodName: "Fire", Handler: unaryHandler(DeviceServiceServer.Fire)},
		{MethodName: "Disarm", Handler: unaryHandler(DeviceServiceServer.Disarm)},
		{MethodName: "StartStream", Handler: unaryHandler(DeviceServiceServer.StartStream)},
		{MethodName: "StopStream", Handler: unaryHandler(DeviceServiceServer.StopStream)},
		{MethodName: "ListParameters", Handler: unaryHandler(DeviceServiceServer.ListParameters)},
		{MethodName: "GetParameter", Handler: unaryHandler(DeviceServiceServer.GetParameter)},
		{MethodName: "SetParameter", Handler: unaryHandler(DeviceServiceServer.SetParameter)},
		{MethodName: "SetExposure", Handler: unaryHandler(DeviceServiceServer.SetExposure)},
		{MethodName: "GetExposure", Handler: unaryHandler(DeviceServiceServer.GetExposure)},
		{MethodName: "SetWavelength", Handler: unaryHandler(DeviceServiceServer.SetWavelength)},
		{MethodName: "SetShutter", Handler: unaryHandler(DeviceServiceServer.SetShutter)},
		{MethodName: "SetEmission", Handler: unaryHandler(DeviceServiceServer.SetEmission)},
		{MethodName: "DescribeDriver", Handler: unaryHandler(DeviceServiceServer.DescribeDriver)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamFrames", ServerStreams: true, Handler: streamHandler("StreamFrames", DeviceServiceServer.StreamFrames)},
		{StreamName: "StreamParameterChanges", ServerStreams: true, Handler: streamHandler("StreamParameterChanges", DeviceServiceServer.StreamParameterChanges)},
		{StreamName: "StreamObservables", ServerStreams: true, Handler: streamHandler("StreamObservables", DeviceServiceServer.StreamObservables)},
		{StreamName: "StreamValues", ServerStreams: true, Handler: streamHandler("StreamValues", DeviceServiceServer.StreamValues)},
		{StreamName: "StreamDeviceState", ServerStreams: true, Handler: streamHandler("StreamDeviceState", DeviceServiceServer.StreamDeviceState)},
		{StreamName: "StreamModuleEvents", ServerStreams: true, Handler: streamHandler("StreamModuleEvents", DeviceServiceServer.StreamModuleEvents)},
	},
	Metadata: "daqpb/service.go",
}

// RegisterDeviceService registers impl's methods on s under ServiceDesc.
func RegisterDeviceService(s grpc.ServiceRegistrar, impl DeviceServiceServer) {
	s.RegisterService(&ServiceDesc, impl)
}
