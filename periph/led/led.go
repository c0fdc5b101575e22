// Package led implements an 8-bit LED latch: each bit of the latch drives one lamp.
package led

import (
	"fmt"
	"io"
	"mmiosim/periph"
	"sync"
)

// DefaultBase is where the LED latch sits in the kernel I/O page.
const DefaultBase uint32 = 0xFFFF0090

const driverName = "led"

type Lamps [8]bool

// Decode returns the lamp states of a latch value; lamp i is bit i.
func Decode(value uint8) (l Lamps) {
	for i := range l {
		l[i] = (value>>i)&1 != 0
	}
	return
}

func (l Lamps) String() string {
	b := make([]byte, len(l))
	for i, on := range l {
		if on {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

type LED struct {
	name string
	regs *periph.RegisterFile

	Logger io.Writer

	mu sync.Mutex
}

func New(name string, base uint32) *LED {
	return &LED{
		name: name,
		regs: periph.NewRegisterFile(base, []periph.Register{
			{Name: "latch", Offset: 0, Role: periph.RoleLatch, Access: periph.ReadWrite, Width: 8},
		}),
	}
}

func (d *LED) Name() string                 { return d.name }
func (d *LED) Driver() string               { return driverName }
func (d *LED) Base() uint32                 { return d.regs.Base() }
func (d *LED) Size() uint32                 { return d.regs.Size() }
func (d *LED) Registers() []periph.Register { return d.regs.Registers() }

func (d *LED) Read(addr uint32) uint32 {
	defer d.mu.Unlock()
	d.mu.Lock()
	v, _ := d.regs.Load(addr)
	return v
}

func (d *LED) Write(addr uint32, value uint32) bool {
	defer d.mu.Unlock()
	d.mu.Lock()
	if !d.regs.Store(addr, value) {
		return false
	}
	if d.Logger != nil {
		fmt.Fprintf(d.Logger, "led[%s] <- %s\n", d.name, Decode(uint8(value)))
	}
	return true
}

func (d *LED) Peek(addr uint32) (uint32, bool) {
	defer d.mu.Unlock()
	d.mu.Lock()
	if !d.regs.Has(addr) {
		return 0, false
	}
	return d.regs.Get(addr), true
}

func (d *LED) Reset() {
	defer d.mu.Unlock()
	d.mu.Lock()
	d.regs.Reset()
}

func (d *LED) Value() uint8 {
	defer d.mu.Unlock()
	d.mu.Lock()
	return uint8(d.regs.Get(d.regs.Base()))
}

func (d *LED) Lamps() Lamps {
	return Decode(d.Value())
}
