// Package bus decodes Processor addresses onto memory-mapped devices and RAM regions.
package bus

import (
	"fmt"
	"io"
	"mmiosim/machine/memory"
	"mmiosim/periph"
	"sort"
	"sync"
)

const (
	pageShift = 8
	pageMask  = ^uint32(1<<pageShift - 1)
)

// Bus routes each access to the device owning the address, else to the RAM region containing it,
// else treats it as unmapped. Device ranges may sit inside a RAM region; the device then owns
// those addresses exclusively.
type Bus struct {
	// Logger receives a line for every unmapped access when non-nil.
	Logger io.Writer

	mu      sync.RWMutex
	devices []periph.Device
	pages   map[uint32][]periph.Device
	regions []memory.Backing
}

func New() *Bus {
	return &Bus{
		pages: make(map[uint32][]periph.Device),
	}
}

// Attach maps dev at its configured range. Device ranges must not overlap each other.
func (b *Bus) Attach(dev periph.Device) error {
	defer b.mu.Unlock()
	b.mu.Lock()

	if dev.Size() == 0 {
		return fmt.Errorf("bus: attach %q: empty register map", dev.Name())
	}
	if uint64(dev.Base())+uint64(dev.Size()) > 1<<32 {
		return fmt.Errorf("bus: attach %q: range $%08x+%d wraps the address space", dev.Name(), dev.Base(), dev.Size())
	}

	for _, other := range b.devices {
		if other.Name() == dev.Name() {
			return fmt.Errorf("bus: attach %q: duplicate device name", dev.Name())
		}
		if periph.Overlaps(dev.Base(), dev.Size(), other.Base(), other.Size()) {
			return fmt.Errorf(
				"bus: attach %q [$%08x..$%08x]: %w with %q",
				dev.Name(),
				dev.Base(),
				dev.Base()+dev.Size()-1,
				periph.ErrAddressOverlap,
				other.Name(),
			)
		}
	}

	b.devices = append(b.devices, dev)
	last := dev.Base() + dev.Size() - 1
	for page := dev.Base() & pageMask; ; page += 1 << pageShift {
		b.pages[page] = append(b.pages[page], dev)
		if page == last&pageMask {
			break
		}
	}
	return nil
}

// AttachRegion maps a RAM region. Regions must not overlap each other.
func (b *Bus) AttachRegion(r memory.Backing) error {
	defer b.mu.Unlock()
	b.mu.Lock()

	if r.Size() == 0 {
		return fmt.Errorf("bus: attach region %q: zero size", r.Name())
	}
	if uint64(r.Base())+uint64(r.Size()) > 1<<32 {
		return fmt.Errorf("bus: attach region %q: range wraps the address space", r.Name())
	}
	for _, other := range b.regions {
		if periph.Overlaps(r.Base(), r.Size(), other.Base(), other.Size()) {
			return fmt.Errorf("bus: attach region %q: %w with %q", r.Name(), periph.ErrAddressOverlap, other.Name())
		}
	}

	b.regions = append(b.regions, r)
	sort.Slice(b.regions, func(i, j int) bool { return b.regions[i].Base() < b.regions[j].Base() })
	return nil
}

func (b *Bus) deviceAt(addr uint32) periph.Device {
	for _, dev := range b.pages[addr&pageMask] {
		if periph.Contains(dev, addr) {
			return dev
		}
	}
	return nil
}

func (b *Bus) regionAt(addr uint32) memory.Backing {
	i := sort.Search(len(b.regions), func(i int) bool {
		r := b.regions[i]
		return uint64(r.Base())+uint64(r.Size()) > uint64(addr)
	})
	if i < len(b.regions) && b.regions[i].Base() <= addr {
		return b.regions[i]
	}
	return nil
}

// DeviceAt returns the device owning addr, or nil.
func (b *Bus) DeviceAt(addr uint32) periph.Device {
	defer b.mu.RUnlock()
	b.mu.RLock()
	return b.deviceAt(addr)
}

// RegionAt returns the RAM region containing addr, or nil. It does not account for device
// shadowing.
func (b *Bus) RegionAt(addr uint32) memory.Backing {
	defer b.mu.RUnlock()
	b.mu.RLock()
	return b.regionAt(addr)
}

func (b *Bus) lookup(addr uint32) (periph.Device, memory.Backing) {
	defer b.mu.RUnlock()
	b.mu.RLock()

	if dev := b.deviceAt(addr); dev != nil {
		return dev, nil
	}
	return nil, b.regionAt(addr)
}

// Read returns the word at addr. Unmapped addresses read as 0.
func (b *Bus) Read(addr uint32) uint32 {
	dev, r := b.lookup(addr)
	switch {
	case dev != nil:
		return dev.Read(addr)
	case r != nil:
		return r.Read(addr)
	}

	if b.Logger != nil {
		fmt.Fprintf(b.Logger, "bus: unmapped read $%08x\n", addr)
	}
	return 0
}

// Write stores value at addr. It reports false when nothing is mapped there.
func (b *Bus) Write(addr uint32, value uint32) bool {
	dev, r := b.lookup(addr)
	switch {
	case dev != nil:
		if dev.Write(addr, value) {
			return true
		}
	case r != nil:
		r.Write(addr, value)
		return true
	}

	if b.Logger != nil {
		fmt.Fprintf(b.Logger, "bus: unmapped write $%08x <- $%08x\n", addr, value)
	}
	return false
}

// Content observes addr without side effects. ok is false for unmapped addresses, device gaps
// and RAM that has never been written.
func (b *Bus) Content(addr uint32) (value uint32, ok bool) {
	dev, r := b.lookup(addr)
	switch {
	case dev != nil:
		return dev.Peek(addr)
	case r != nil:
		return r.Content(addr)
	}
	return 0, false
}

// Reset clears every RAM region and resets every device.
func (b *Bus) Reset() {
	b.mu.RLock()
	devices := append([]periph.Device(nil), b.devices...)
	regions := append([]memory.Backing(nil), b.regions...)
	b.mu.RUnlock()

	for _, r := range regions {
		r.Clear()
	}
	for _, dev := range devices {
		dev.Reset()
	}
}

// Device returns the attached device with the given instance name.
func (b *Bus) Device(name string) (periph.Device, error) {
	defer b.mu.RUnlock()
	b.mu.RLock()

	for _, dev := range b.devices {
		if dev.Name() == name {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("bus: %w %q", periph.ErrNoDevice, name)
}

// Devices returns the attached devices in address order.
func (b *Bus) Devices() []periph.Device {
	b.mu.RLock()
	devices := append([]periph.Device(nil), b.devices...)
	b.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].Base() < devices[j].Base() })
	return devices
}

// Regions returns the attached RAM regions in address order.
func (b *Bus) Regions() []memory.Backing {
	defer b.mu.RUnlock()
	b.mu.RLock()
	return append([]memory.Backing(nil), b.regions...)
}
