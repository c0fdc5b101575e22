package rpc

import (
	"context"
	"errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"log"
	"mmiosim/bridge"
	"mmiosim/machine"
)

// events buffered per stream before new ones are dropped:
const eventBacklog = 1024

// Server serves the bus of one machine to remote Processors.
type Server struct {
	m   *machine.Machine
	b   *bridge.Bridge
	hub *bridge.Hub
}

// NewServer serves m. Received bytes go through b; event streams subscribe to hub.
func NewServer(m *machine.Machine, b *bridge.Bridge, hub *bridge.Hub) *Server {
	return &Server{m: m, b: b, hub: hub}
}

// NewGRPCServer creates a gRPC server carrying srv and the standard health service.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(opts...)
	RegisterPeripheralsServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return gs
}

func (s *Server) ReadWord(_ context.Context, in *wrapperspb.UInt32Value) (*wrapperspb.UInt32Value, error) {
	return wrapperspb.UInt32(s.m.Read(in.GetValue())), nil
}

func (s *Server) WriteWord(_ context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error) {
	addr, err := word(in, "address")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "write: %v", err)
	}
	value, err := word(in, "value")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "write: %v", err)
	}

	return wrapperspb.Bool(s.m.Write(addr, value)), nil
}

// ReceiveBytes feeds each byte to the UART immediately and returns how many were accepted.
func (s *Server) ReceiveBytes(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.UInt32Value, error) {
	if s.b == nil || s.b.UART() == nil {
		return nil, status.Error(codes.FailedPrecondition, "receive: machine has no uart")
	}

	var n uint32
	for _, c := range in.GetValue() {
		if s.b.ReceiveByte(c) {
			n++
		}
	}
	return wrapperspb.UInt32(n), nil
}

func (s *Server) SetStackPointer(_ context.Context, in *wrapperspb.UInt32Value) (*emptypb.Empty, error) {
	if err := s.m.SetStackPointer(in.GetValue()); err != nil {
		if errors.Is(err, machine.ErrNoStack) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Reset(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.m.Reset()
	return &emptypb.Empty{}, nil
}

func (s *Server) Events(_ *emptypb.Empty, stream EventsServer) error {
	if s.hub == nil {
		return status.Error(codes.Unavailable, "events: no event hub")
	}

	q := make(chan Event, eventBacklog)
	push := func(e Event) {
		select {
		case q <- e:
		default:
			log.Printf("rpc: events: backlog full; dropped %v\n", e)
		}
	}
	sink := &bridge.SinkFuncs{
		OnRegisterChanged: func(addr uint32, value uint32) {
			push(Event{Kind: KindRegister, Address: addr, Value: value})
		},
		OnByteTransmitted: func(b byte) {
			push(Event{Kind: KindTransmit, Value: uint32(b)})
		},
	}

	s.hub.Subscribe(sink)
	defer s.hub.Unsubscribe(sink)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-q:
			if err := stream.Send(e.toStruct()); err != nil {
				log.Printf("rpc: events: send: %v\n", err)
				return err
			}
		}
	}
}
