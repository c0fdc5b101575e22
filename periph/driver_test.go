package periph

import (
	"errors"
	"mmiosim/sched"
	"sort"
	"testing"
)

type nullDevice struct {
	name string
	base uint32
}

func (d *nullDevice) Name() string   { return d.name }
func (d *nullDevice) Driver() string { return "null" }
func (d *nullDevice) Base() uint32   { return d.base }
func (d *nullDevice) Size() uint32   { return 4 }
func (d *nullDevice) Registers() []Register {
	return []Register{{Name: "value", Offset: 0, Role: RoleData, Access: ReadWrite, Width: 8}}
}
func (d *nullDevice) Read(addr uint32) uint32                 { return 0 }
func (d *nullDevice) Write(addr uint32, value uint32) bool    { return Contains(d, addr) }
func (d *nullDevice) Peek(addr uint32) (value uint32, ok bool) { return 0, Contains(d, addr) }
func (d *nullDevice) Reset()                                  {}

type nullDriver struct{}

func (nullDriver) DisplayName() string { return "Null" }

func (nullDriver) Open(cfg DeviceConfig, s *sched.Scheduler) (Device, error) {
	var opts struct {
		Fail bool `json:"fail"`
	}
	if err := DecodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if opts.Fail {
		return nil, ErrInvalidInput
	}
	return &nullDevice{name: cfg.Name, base: uint32(cfg.Base)}, nil
}

func init() {
	RegisterDriver("null", nullDriver{})
}

func TestRegisterDriver(t *testing.T) {
	tests := []struct {
		name   string
		verify func(t *testing.T)
	}{
		{
			name: "registered drivers are listed sorted",
			verify: func(t *testing.T) {
				names := Drivers()
				if !sort.StringsAreSorted(names) {
					t.Errorf("drivers = %v, not sorted", names)
				}
				found := false
				for _, n := range names {
					found = found || n == "null"
				}
				if !found {
					t.Errorf("drivers = %v, missing %q", names, "null")
				}
			},
		},
		{
			name: "open by driver name",
			verify: func(t *testing.T) {
				dev, err := Open(DeviceConfig{Driver: "null", Name: "n0", Base: 0x100}, sched.New())
				if err != nil {
					t.Fatal(err)
				}
				if dev.Name() != "n0" || dev.Base() != 0x100 || len(dev.Registers()) != 1 {
					t.Errorf("device = %+v", dev)
				}
			},
		},
		{
			name: "unknown driver",
			verify: func(t *testing.T) {
				_, err := Open(DeviceConfig{Driver: "nope", Name: "x"}, nil)
				if !errors.Is(err, ErrUnknownDriver) {
					t.Errorf("err = %v, expected %v", err, ErrUnknownDriver)
				}
			},
		},
		{
			name: "driver errors are attributed to the device",
			verify: func(t *testing.T) {
				_, err := Open(DeviceConfig{Driver: "null", Name: "bad", Options: []byte(`{"fail":true}`)}, nil)
				var derr *DeviceError
				if !errors.As(err, &derr) || derr.Device != "bad" {
					t.Fatalf("err = %v, expected a DeviceError for %q", err, "bad")
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("err = %v does not unwrap to %v", err, ErrInvalidInput)
				}
			},
		},
		{
			name: "registering a name twice panics",
			verify: func(t *testing.T) {
				defer func() {
					if recover() == nil {
						t.Error("no panic")
					}
				}()
				RegisterDriver("null", nullDriver{})
			},
		},
		{
			name: "registering nil panics",
			verify: func(t *testing.T) {
				defer func() {
					if recover() == nil {
						t.Error("no panic")
					}
				}()
				RegisterDriver("nil", nil)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t)
		})
	}
}
