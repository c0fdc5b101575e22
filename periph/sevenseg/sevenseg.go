// Package sevenseg implements a four digit seven-segment display. Each digit has its own 8-bit
// register holding a segment code that is decoded through a fixed table.
package sevenseg

import (
	"fmt"
	"io"
	"mmiosim/periph"
	"sync"
)

// DefaultBase is the address of the leftmost digit; the others follow 4 bytes apart.
const DefaultBase uint32 = 0x10000020

const (
	NumDigits   = 4
	DigitStride = 4
)

const driverName = "sevenseg"

// Pattern holds the segment states in a, b, c, d, e, f, g order.
type Pattern [7]bool

var Blank Pattern

func (p Pattern) String() string {
	b := make([]byte, len(p))
	for i, on := range p {
		if on {
			b[i] = 'a' + byte(i)
		} else {
			b[i] = '-'
		}
	}
	return string(b)
}

func pattern(a, b, c, d, e, f, g uint8) Pattern {
	return Pattern{a == 1, b == 1, c == 1, d == 1, e == 1, f == 1, g == 1}
}

var patterns = map[uint8]Pattern{
	0x00: Blank,
	0x3F: pattern(1, 1, 1, 1, 1, 1, 0), // 0
	0x06: pattern(0, 1, 1, 0, 0, 0, 0), // 1
	0x5B: pattern(1, 1, 0, 1, 1, 0, 1), // 2
	0x4F: pattern(1, 1, 1, 1, 0, 0, 1), // 3
	0x66: pattern(0, 1, 1, 0, 0, 1, 1), // 4
	0x6D: pattern(1, 0, 1, 1, 0, 1, 1), // 5
	0x7D: pattern(1, 0, 1, 1, 1, 1, 1), // 6
	0x07: pattern(1, 1, 1, 0, 0, 0, 0), // 7
	0x7F: pattern(1, 1, 1, 1, 1, 1, 1), // 8
	0x6F: pattern(1, 1, 1, 1, 0, 1, 1), // 9
	0x77: pattern(1, 1, 1, 0, 1, 1, 1), // A
	0x7C: pattern(0, 0, 1, 1, 1, 1, 1), // b
	0x39: pattern(1, 0, 0, 1, 1, 1, 0), // C
	0x5E: pattern(0, 1, 1, 1, 1, 0, 1), // d
	0x79: pattern(1, 0, 0, 1, 1, 1, 1), // E
	0x71: pattern(1, 0, 0, 0, 1, 1, 1), // F
}

// Decode looks up the segment pattern for the low byte of value.
// Codes not in the table show as blank.
func Decode(value uint32) Pattern {
	p, ok := patterns[uint8(value)]
	if !ok {
		return Blank
	}
	return p
}

// Known reports whether code has an entry in the decode table.
func Known(code uint8) bool {
	_, ok := patterns[code]
	return ok
}

var digitNames = [NumDigits]string{"left", "mid-left", "mid-right", "right"}

func DigitName(i int) string {
	if i < 0 || i >= NumDigits {
		return fmt.Sprintf("digit-%d", i)
	}
	return digitNames[i]
}

type Digit struct {
	Name     string  `json:"name"`
	Value    uint8   `json:"value"`
	Segments Pattern `json:"segments"`
}

type Display struct {
	name string
	regs *periph.RegisterFile

	Logger io.Writer

	mu sync.Mutex
}

func New(name string, base uint32) *Display {
	regs := make([]periph.Register, NumDigits)
	for i := range regs {
		regs[i] = periph.Register{
			Name:   DigitName(i),
			Offset: uint32(i * DigitStride),
			Role:   periph.RoleDigit(i),
			Access: periph.ReadWrite,
			Width:  8,
		}
	}

	return &Display{
		name: name,
		regs: periph.NewRegisterFile(base, regs),
	}
}

func (d *Display) Name() string                 { return d.name }
func (d *Display) Driver() string               { return driverName }
func (d *Display) Base() uint32                 { return d.regs.Base() }
func (d *Display) Size() uint32                 { return d.regs.Size() }
func (d *Display) Registers() []periph.Register { return d.regs.Registers() }

func (d *Display) Read(addr uint32) uint32 {
	defer d.mu.Unlock()
	d.mu.Lock()
	v, _ := d.regs.Load(addr)
	return v
}

func (d *Display) Write(addr uint32, value uint32) bool {
	defer d.mu.Unlock()
	d.mu.Lock()
	if !d.regs.Store(addr, value) {
		return false
	}
	if d.Logger != nil {
		r, _ := d.regs.Lookup(addr)
		fmt.Fprintf(d.Logger, "sevenseg[%s][%s] <- $%02x %s\n", d.name, r.Name, uint8(value), Decode(value))
	}
	return true
}

func (d *Display) Peek(addr uint32) (uint32, bool) {
	defer d.mu.Unlock()
	d.mu.Lock()
	if !d.regs.Has(addr) {
		return 0, false
	}
	return d.regs.Get(addr), true
}

func (d *Display) Reset() {
	defer d.mu.Unlock()
	d.mu.Lock()
	d.regs.Reset()
}

// DigitAddress is the register address of digit i, counting from the left.
func (d *Display) DigitAddress(i int) uint32 {
	return d.regs.Base() + uint32(i*DigitStride)
}

func (d *Display) Digits() (digits [NumDigits]Digit) {
	defer d.mu.Unlock()
	d.mu.Lock()

	for i := range digits {
		v := d.regs.Get(d.DigitAddress(i))
		digits[i] = Digit{
			Name:     DigitName(i),
			Value:    uint8(v),
			Segments: Decode(v),
		}
	}
	return
}
