package rpc

import (
	"context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is the Processor side of the Peripherals service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to a Peripherals server without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.Dial(target, opts...)
	if err != nil {
		return nil, nil, err
	}
	return NewClient(cc), cc, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}

func (c *Client) ReadWord(ctx context.Context, addr uint32, opts ...grpc.CallOption) (uint32, error) {
	out := new(wrapperspb.UInt32Value)
	if err := c.invoke(ctx, "ReadWord", wrapperspb.UInt32(addr), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// WriteWord reports false when addr is not mapped.
func (c *Client) WriteWord(ctx context.Context, addr uint32, value uint32, opts ...grpc.CallOption) (bool, error) {
	in := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"address": structpb.NewNumberValue(float64(addr)),
			"value":   structpb.NewNumberValue(float64(value)),
		},
	}
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "WriteWord", in, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// ReceiveBytes returns the number of bytes the UART accepted.
func (c *Client) ReceiveBytes(ctx context.Context, p []byte, opts ...grpc.CallOption) (int, error) {
	out := new(wrapperspb.UInt32Value)
	if err := c.invoke(ctx, "ReceiveBytes", wrapperspb.Bytes(p), out, opts...); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

func (c *Client) SetStackPointer(ctx context.Context, sp uint32, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "SetStackPointer", wrapperspb.UInt32(sp), new(emptypb.Empty), opts...)
}

func (c *Client) Reset(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "Reset", new(emptypb.Empty), new(emptypb.Empty), opts...)
}

type EventStream struct {
	stream grpc.ClientStream
}

// Events subscribes to register changes and transmitted bytes until ctx is done.
func (c *Client) Events(ctx context.Context, opts ...grpc.CallOption) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Events"), opts...)
	if err != nil {
		return nil, err
	}
	if err = stream.SendMsg(new(emptypb.Empty)); err != nil {
		return nil, err
	}
	if err = stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

func (s *EventStream) Recv() (Event, error) {
	m := new(structpb.Struct)
	if err := s.stream.RecvMsg(m); err != nil {
		return Event{}, err
	}
	return eventFromStruct(m), nil
}
