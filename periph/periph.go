package periph

// Device is a memory-mapped peripheral occupying the address range [Base, Base+Size).
//
// Read and Write are the Processor's view of the device and may advance its internal state
// (e.g. reading a UART data register consumes the received byte). Peek is the observer's view and
// must never change device state. Implementations guard their own register set so that a single
// Read, Write or external event is applied atomically.
type Device interface {
	// Name is the instance name from configuration, e.g. "uart0".
	Name() string
	// Driver is the registered driver name that created the device, e.g. "uart".
	Driver() string

	Base() uint32
	Size() uint32

	// Registers describes the register map of the device.
	Registers() []Register

	Read(addr uint32) uint32
	Write(addr uint32, value uint32) bool
	Peek(addr uint32) (value uint32, ok bool)

	// Reset returns the device to its power-on state.
	Reset()
}

// Contains reports whether addr falls in the device's address range.
func Contains(d Device, addr uint32) bool {
	return addr >= d.Base() && addr-d.Base() < d.Size()
}

// Overlaps reports whether the ranges [aStart, aStart+aSize) and [bStart, bStart+bSize) overlap.
func Overlaps(aStart, aSize, bStart, bSize uint32) bool {
	if aSize == 0 || bSize == 0 {
		return false
	}
	aEnd := uint64(aStart) + uint64(aSize)
	bEnd := uint64(bStart) + uint64(bSize)
	return uint64(aStart) < bEnd && uint64(bStart) < aEnd
}
