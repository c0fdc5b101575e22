package periph

import "fmt"

type Access uint8

const (
	ReadWrite Access = iota
	ReadOnly
	WriteOnly
)

func (a Access) String() string {
	switch a {
	case ReadWrite:
		return "rw"
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// Role names what a register is for; the presentation layer groups registers by role.
type Role string

const (
	RoleData    Role = "data"
	RoleStatus  Role = "status"
	RoleControl Role = "control"
	RoleLatch   Role = "latch"
)

// RoleDigit returns the role of the n-th digit register of a display.
func RoleDigit(n int) Role {
	return Role(fmt.Sprintf("digit-%d", n))
}

type BitField struct {
	Name string `json:"name"`
	Mask uint32 `json:"mask"`
}

// Register describes a single device register.
type Register struct {
	Name   string     `json:"name"`
	Offset uint32     `json:"offset"`
	Role   Role       `json:"role"`
	Access Access     `json:"access"`
	Width  uint8      `json:"width"` // bits
	Reset  uint32     `json:"reset"` // power-on value
	Bits   []BitField `json:"bits,omitempty"`
}

func (r Register) mask() uint32 {
	if r.Width == 0 || r.Width >= 32 {
		return 0xFFFF_FFFF
	}
	return 1<<r.Width - 1
}

type slot struct {
	reg   Register
	value uint32
}

// RegisterFile is the register storage of a single device: absolute address to value, plus the
// register descriptors and their named bit masks. It is not safe for concurrent use; the owning
// device serializes access.
type RegisterFile struct {
	base  uint32
	size  uint32
	slots map[uint32]*slot
	order []Register
	bits  map[string]uint32
}

func NewRegisterFile(base uint32, regs []Register) *RegisterFile {
	f := &RegisterFile{
		base:  base,
		slots: make(map[uint32]*slot, len(regs)),
		order: make([]Register, 0, len(regs)),
		bits:  make(map[string]uint32),
	}

	for _, r := range regs {
		f.slots[base+r.Offset] = &slot{reg: r, value: r.Reset & r.mask()}
		f.order = append(f.order, r)
		if end := r.Offset + 4; end > f.size {
			f.size = end
		}
		for _, b := range r.Bits {
			f.bits[b.Name] = b.Mask
		}
	}

	return f
}

func (f *RegisterFile) Base() uint32 { return f.base }

// Size is the span of the register map rounded up to whole words.
func (f *RegisterFile) Size() uint32 { return f.size }

// Registers returns the register descriptors in declaration order.
func (f *RegisterFile) Registers() []Register {
	regs := make([]Register, len(f.order))
	copy(regs, f.order)
	return regs
}

func (f *RegisterFile) Has(addr uint32) bool {
	_, ok := f.slots[addr]
	return ok
}

// Lookup returns the descriptor of the register at addr.
func (f *RegisterFile) Lookup(addr uint32) (Register, bool) {
	s, ok := f.slots[addr]
	if !ok {
		return Register{}, false
	}
	return s.reg, true
}

// Mask returns the named bit mask, or 0 when no register declares it.
func (f *RegisterFile) Mask(name string) uint32 {
	return f.bits[name]
}

// Get returns the raw stored value at addr regardless of access direction.
func (f *RegisterFile) Get(addr uint32) uint32 {
	s, ok := f.slots[addr]
	if !ok {
		return 0
	}
	return s.value
}

// Set stores value at addr regardless of access direction, truncated to the register width.
func (f *RegisterFile) Set(addr uint32, value uint32) {
	s, ok := f.slots[addr]
	if !ok {
		return
	}
	s.value = value & s.reg.mask()
}

// Load is a Processor read: write-only registers read as 0.
func (f *RegisterFile) Load(addr uint32) (value uint32, ok bool) {
	s, ok := f.slots[addr]
	if !ok {
		return 0, false
	}
	if s.reg.Access == WriteOnly {
		return 0, true
	}
	return s.value, true
}

// Store is a Processor write: writes to read-only registers are accepted and ignored.
func (f *RegisterFile) Store(addr uint32, value uint32) bool {
	s, ok := f.slots[addr]
	if !ok {
		return false
	}
	if s.reg.Access == ReadOnly {
		return true
	}
	s.value = value & s.reg.mask()
	return true
}

// Reset restores every register to its power-on value.
func (f *RegisterFile) Reset() {
	for _, s := range f.slots {
		s.value = s.reg.Reset & s.reg.mask()
	}
}
