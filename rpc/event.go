package rpc

import (
	"fmt"
	"google.golang.org/protobuf/types/known/structpb"
)

type EventKind string

const (
	// KindRegister reports a watched register whose sampled value changed.
	KindRegister EventKind = "register"
	// KindTransmit reports a byte the UART transmitted.
	KindTransmit EventKind = "transmit"
)

type Event struct {
	Kind    EventKind
	Address uint32
	Value   uint32
}

func (e Event) String() string {
	if e.Kind == KindTransmit {
		return fmt.Sprintf("transmit $%02x", e.Value)
	}
	return fmt.Sprintf("%s [$%08x] = $%08x", e.Kind, e.Address, e.Value)
}

func (e Event) toStruct() *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"kind":    structpb.NewStringValue(string(e.Kind)),
			"address": structpb.NewNumberValue(float64(e.Address)),
			"value":   structpb.NewNumberValue(float64(e.Value)),
		},
	}
}

func eventFromStruct(s *structpb.Struct) Event {
	f := s.GetFields()
	return Event{
		Kind:    EventKind(f["kind"].GetStringValue()),
		Address: uint32(f["address"].GetNumberValue()),
		Value:   uint32(f["value"].GetNumberValue()),
	}
}

// word extracts a required 32-bit field from s.
func word(s *structpb.Struct, name string) (uint32, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number", name)
	}
	if n.NumberValue < 0 || n.NumberValue > 0xFFFF_FFFF || n.NumberValue != float64(uint32(n.NumberValue)) {
		return 0, fmt.Errorf("field %q out of range: %v", name, n.NumberValue)
	}
	return uint32(n.NumberValue), nil
}
