package grpcsignal

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "grpcsignal.SignalService"

// SignalServer is the server-side contract for the signal transport: a
// single RPC that accepts an encoded exec.Signal and acknowledges delivery.
type SignalServer interface {
	Propagate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSignalServer registers srv on s using the hand-written service
// descriptor below.
func RegisterSignalServer(s grpc.ServiceRegistrar, srv SignalServer) {
	s.RegisterService(&signalServiceDesc, srv)
}

func _SignalService_Propagate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SignalServer).Propagate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Propagate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SignalServer).Propagate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// signalServiceDesc is authored by hand rather than generated from a .proto:
// the wire message is a bare google.protobuf.Struct, so there is no
// generated message type to wrap and no codegen step to run.
var signalServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SignalServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Propagate",
			Handler:    _SignalService_Propagate_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grpcsignal.proto",
}
