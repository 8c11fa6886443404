package deviceservice

import (
	"context"

	"github.com/easternanemone/rust-daq-sub009/internal/observable"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
)

func toWireDescriptor(name string, md observable.Metadata) daqpb.ParameterDescriptor {
	return daqpb.ParameterDescriptor{
		Name:        name,
		Description: md.Description,
		Dtype:       md.Dtype,
		Units:       md.Units,
		ReadOnly:    md.ReadOnly,
		MinValue:    md.Min,
		MaxValue:    md.Max,
		EnumValues:  md.EnumValues,
	}
}

func (s *Server) ListParameters(ctx context.Context, req *daqpb.DeviceIDRequest) (*daqpb.ListParametersResponse, error) {
	p, err := s.parameterized(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	params := p.Parameters()
	out := make([]daqpb.ParameterDescriptor, 0, len(params.Names()))
	params.Iter(func(name string, obs observable.Erased) {
		out = append(out, toWireDescriptor(name, obs.Metadata()))
	})
	return &daqpb.ListParametersResponse{Parameters: out}, nil
}

func (s *Server) GetParameter(ctx context.Context, req *daqpb.GetParameterRequest) (*daqpb.GetParameterResponse, error) {
	p, err := s.parameterized(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	data, err := p.Parameters().GetJSON(req.Name)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.GetParameterResponse{ValueJSON: data}, nil
}

func (s *Server) SetParameter(ctx context.Context, req *daqpb.SetParameterRequest) (*daqpb.Empty, error) {
	p, err := s.parameterized(req.DeviceID)
	if err != nil {
		return nil, wrapErr(ctx, err)
	}
	if err := p.Parameters().SetJSON(ctx, req.Name, req.ValueJSON); err != nil {
		return nil, wrapErr(ctx, err)
	}
	return &daqpb.Empty{}, nil
}
