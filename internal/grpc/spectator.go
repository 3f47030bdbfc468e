package grpc

import (
	"context"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	spectatorServiceName  = "arena.v1.Spectator"
	streamFramesMethod    = "/" + spectatorServiceName + "/StreamFrames"
	resultsMethod         = "/" + spectatorServiceName + "/Results"
	streamTelemetryMethod = "/" + spectatorServiceName + "/StreamTelemetry"
)

// SpectatorServer is the server API of the arena.v1.Spectator service. The messages are
// well-known protobuf types so the service needs no generated code.
type SpectatorServer interface {
	StreamFrames(*emptypb.Empty, ggrpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	Results(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	StreamTelemetry(ggrpc.BidiStreamingServer[wrapperspb.UInt64Value, wrapperspb.StringValue]) error
}

// RegisterSpectatorServer attaches srv to a gRPC server.
func RegisterSpectatorServer(registrar ggrpc.ServiceRegistrar, srv SpectatorServer) {
	registrar.RegisterService(&spectatorServiceDesc, srv)
}

var spectatorServiceDesc = ggrpc.ServiceDesc{
	ServiceName: spectatorServiceName,
	HandlerType: (*SpectatorServer)(nil),
	Methods: []ggrpc.MethodDesc{
		{MethodName: "Results", Handler: resultsHandler},
	},
	Streams: []ggrpc.StreamDesc{
		{StreamName: "StreamFrames", Handler: streamFramesHandler, ServerStreams: true},
		{StreamName: "StreamTelemetry", Handler: streamTelemetryHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "arena/v1/spectator.proto",
}

func streamFramesHandler(srv any, stream ggrpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SpectatorServer).StreamFrames(in, &ggrpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

func streamTelemetryHandler(srv any, stream ggrpc.ServerStream) error {
	return srv.(SpectatorServer).StreamTelemetry(&ggrpc.GenericServerStream[wrapperspb.UInt64Value, wrapperspb.StringValue]{ServerStream: stream})
}

func resultsHandler(srv any, ctx context.Context, dec func(any) error, interceptor ggrpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpectatorServer).Results(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: resultsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SpectatorServer).Results(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
