// Package rpc exposes the machine bus to a remote Processor over gRPC.
//
// The service is described by hand with protobuf well-known types so no generated code is needed:
//
//	service mmiosim.Peripherals {
//	  rpc ReadWord(UInt32Value) returns (UInt32Value);
//	  rpc WriteWord(Struct{address, value}) returns (BoolValue);
//	  rpc ReceiveBytes(BytesValue) returns (UInt32Value);
//	  rpc SetStackPointer(UInt32Value) returns (Empty);
//	  rpc Reset(Empty) returns (Empty);
//	  rpc Events(Empty) returns (stream Struct{kind, address, value});
//	}
package rpc

import (
	"context"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "mmiosim.Peripherals"

type PeripheralsServer interface {
	ReadWord(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.UInt32Value, error)
	WriteWord(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	ReceiveBytes(context.Context, *wrapperspb.BytesValue) (*wrapperspb.UInt32Value, error)
	SetStackPointer(context.Context, *wrapperspb.UInt32Value) (*emptypb.Empty, error)
	Reset(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Events(*emptypb.Empty, EventsServer) error
}

type EventsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type eventsServer struct {
	grpc.ServerStream
}

func (x *eventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req any, Resp any](method string, call func(PeripheralsServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			s := srv.(PeripheralsServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

func eventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PeripheralsServer).Events(in, &eventsServer{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PeripheralsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ReadWord", PeripheralsServer.ReadWord),
		unary("WriteWord", PeripheralsServer.WriteWord),
		unary("ReceiveBytes", PeripheralsServer.ReceiveBytes),
		unary("SetStackPointer", PeripheralsServer.SetStackPointer),
		unary("Reset", PeripheralsServer.Reset),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "mmiosim/peripherals",
}

// RegisterPeripheralsServer adds srv to s.
func RegisterPeripheralsServer(s grpc.ServiceRegistrar, srv PeripheralsServer) {
	s.RegisterService(&serviceDesc, srv)
}
