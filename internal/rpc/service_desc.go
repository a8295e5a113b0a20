package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReductionServiceName is the fully qualified gRPC service name.
const ReductionServiceName = "slr.reduction.v1.ReductionService"

const (
	reduceStationsMethod = "/" + ReductionServiceName + "/ReduceStations"
	extractRangesMethod  = "/" + ReductionServiceName + "/ExtractRanges"
)

// ReductionServiceServer is the server API. Requests and replies are
// google.protobuf.Struct documents; see Service for their fields.
type ReductionServiceServer interface {
	ReduceStations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExtractRanges(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterReductionServiceServer registers srv on s.
func RegisterReductionServiceServer(s grpc.ServiceRegistrar, srv ReductionServiceServer) {
	s.RegisterService(&ReductionServiceDesc, srv)
}

// ReductionServiceDesc describes the service for grpc.Server.
var ReductionServiceDesc = grpc.ServiceDesc{
	ServiceName: ReductionServiceName,
	HandlerType: (*ReductionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReduceStations", Handler: reduceStationsHandler},
		{MethodName: "ExtractRanges", Handler: extractRangesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slr/reduction/v1/reduction.proto",
}

func reduceStationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReductionServiceServer).ReduceStations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: reduceStationsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReductionServiceServer).ReduceStations(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func extractRangesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReductionServiceServer).ExtractRanges(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: extractRangesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReductionServiceServer).ExtractRanges(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ReductionServiceClient calls the service over a client connection.
type ReductionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReductionServiceClient wraps cc.
func NewReductionServiceClient(cc grpc.ClientConnInterface) *ReductionServiceClient {
	return &ReductionServiceClient{cc: cc}
}

// ReduceStations invokes the ReduceStations method.
func (c *ReductionServiceClient) ReduceStations(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, reduceStationsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractRanges invokes the ExtractRanges method.
func (c *ReductionServiceClient) ExtractRanges(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, extractRangesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
