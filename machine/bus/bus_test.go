package bus_test

import (
	"errors"
	"mmiosim/machine/bus"
	"mmiosim/machine/memory"
	"mmiosim/periph"
	"mmiosim/periph/led"
	"mmiosim/periph/sevenseg"
	"mmiosim/periph/uart"
	"mmiosim/util"
	"testing"
)

func newBus(t *testing.T) (*bus.Bus, *uart.UART) {
	t.Helper()

	b := bus.New()
	b.Logger = util.NewTestingLogger(t)

	u, err := uart.New("uart0", uart.DefaultBase, uart.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, dev := range []periph.Device{
		u,
		led.New("led0", led.DefaultBase),
		sevenseg.New("seg0", sevenseg.DefaultBase),
	} {
		if err = b.Attach(dev); err != nil {
			t.Fatal(err)
		}
	}
	if err = b.AttachRegion(memory.NewRAM("data", 0x10000000, 0x100000)); err != nil {
		t.Fatal(err)
	}
	if err = b.AttachRegion(memory.NewStack("stack", 0x80000000, 0x1000)); err != nil {
		t.Fatal(err)
	}
	return b, u
}

func TestBus_Decode(t *testing.T) {
	tests := []struct {
		name   string
		verify func(t *testing.T, b *bus.Bus, u *uart.UART)
	}{
		{
			name: "device shadows ram",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				if !b.Write(uart.DefaultBase+uart.ControlOffset, 0x5A) {
					t.Fatal("control write not handled")
				}
				if actual := u.State().Control; actual != 0x5A {
					t.Errorf("control = $%02x, expected $5a", actual)
				}
				r := b.RegionAt(uart.DefaultBase)
				if _, ok := r.Content(uart.DefaultBase + uart.ControlOffset); ok {
					t.Error("device write leaked into ram")
				}
			},
		},
		{
			name: "ram around devices",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				if !b.Write(0x10000100, 0x12345678) {
					t.Fatal("ram write not handled")
				}
				if actual := b.Read(0x10000100); actual != 0x12345678 {
					t.Errorf("read = $%08x", actual)
				}
				if v, ok := b.Content(0x10000104); ok || v != 0 {
					t.Errorf("unwritten content = %v, %v", v, ok)
				}
				if actual := b.Read(0x10000104); actual != 0 {
					t.Errorf("unwritten read = $%08x", actual)
				}
			},
		},
		{
			name: "unmapped reads 0 and rejects writes",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				if b.Write(0x00400000, 1) {
					t.Error("unmapped write handled")
				}
				if actual := b.Read(0x00400000); actual != 0 {
					t.Errorf("unmapped read = $%08x", actual)
				}
				if _, ok := b.Content(0x00400000); ok {
					t.Error("unmapped content ok")
				}
			},
		},
		{
			name: "gaps in a device map are unhandled",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				if b.Write(uart.DefaultBase+1, 1) {
					t.Error("write between registers handled")
				}
				if dev := b.DeviceAt(uart.DefaultBase + 1); dev == nil || dev.Name() != "uart0" {
					t.Errorf("device at gap = %v", dev)
				}
			},
		},
		{
			name: "content does not consume received bytes",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				u.ReceiveByte('a')
				u.ReceiveByte('b')
				for i := 0; i < 2; i++ {
					if v, ok := b.Content(uart.DefaultBase); !ok || v != 'a' {
						t.Fatalf("content = %v, %v", v, ok)
					}
				}
				if actual := b.Read(uart.DefaultBase); actual != 'a' {
					t.Errorf("read = %q", rune(actual))
				}
				if actual := b.Read(uart.DefaultBase); actual != 'b' {
					t.Errorf("read = %q", rune(actual))
				}
			},
		},
		{
			name: "stack below the pointer is undefined",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				s := b.RegionAt(0x7FFFFFFC).(*memory.Stack)
				s.SetStackPointer(0x7FFFFFFC)
				b.Write(0x7FFFFFFC, 7)
				b.Write(0x7FFFFFF8, 8)
				if v, ok := b.Content(0x7FFFFFFC); !ok || v != 7 {
					t.Errorf("top = %v, %v", v, ok)
				}
				if _, ok := b.Content(0x7FFFFFF8); ok {
					t.Error("below sp is defined")
				}
			},
		},
		{
			name: "reset clears ram and devices",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				b.Write(0x10000100, 1)
				b.Write(led.DefaultBase, 0xFF)
				u.ReceiveByte('z')
				b.Reset()

				if _, ok := b.Content(0x10000100); ok {
					t.Error("ram survived reset")
				}
				if actual := b.Read(led.DefaultBase); actual != 0 {
					t.Errorf("led = $%02x after reset", actual)
				}
				if actual := b.Read(uart.DefaultBase + uart.StatusOffset); actual != 0x01 {
					t.Errorf("uart status = $%02x after reset", actual)
				}
			},
		},
		{
			name: "devices listed in address order",
			verify: func(t *testing.T, b *bus.Bus, u *uart.UART) {
				var names []string
				for _, dev := range b.Devices() {
					names = append(names, dev.Name())
				}
				if len(names) != 3 || names[0] != "seg0" || names[1] != "uart0" || names[2] != "led0" {
					t.Errorf("devices = %v", names)
				}
				if _, err := b.Device("nope"); !errors.Is(err, periph.ErrNoDevice) {
					t.Errorf("err = %v, expected ErrNoDevice", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, u := newBus(t)
			tt.verify(t, b, u)
		})
	}
}

func TestBus_AttachOverlap(t *testing.T) {
	b, _ := newBus(t)

	err := b.Attach(led.New("led1", uart.DefaultBase+8))
	if !errors.Is(err, periph.ErrAddressOverlap) {
		t.Errorf("device overlap err = %v", err)
	}
	err = b.Attach(led.New("led0", 0x20000000))
	if err == nil {
		t.Error("duplicate name accepted")
	}
	err = b.AttachRegion(memory.NewRAM("more", 0x100FFFFC, 8))
	if !errors.Is(err, periph.ErrAddressOverlap) {
		t.Errorf("region overlap err = %v", err)
	}
	if err = b.AttachRegion(memory.NewRAM("kdata", 0x90000000, 0x10000)); err != nil {
		t.Errorf("disjoint region rejected: %v", err)
	}
	if err = b.Attach(led.New("led2", 0xFFFFFFFC)); err != nil {
		t.Errorf("device at the top of the address space rejected: %v", err)
	}
	if actual := len(b.Regions()); actual != 3 {
		t.Errorf("regions = %d", actual)
	}
}
