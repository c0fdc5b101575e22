// Package machine assembles a bus, its RAM regions, devices and the event scheduler into the
// single aggregate the Processor talks to.
package machine

import (
	"errors"
	"fmt"
	"io"
	"mmiosim/interfaces"
	"mmiosim/machine/bus"
	"mmiosim/machine/memory"
	"mmiosim/periph"
	"mmiosim/periph/led"
	"mmiosim/periph/sevenseg"
	"mmiosim/periph/uart"
	"mmiosim/sched"
	"sync"
	"time"
)

var ErrNoStack = errors.New("machine has no stack region")

// Transmitted is sent to observers for every byte a UART transmits.
type Transmitted struct {
	Device string
	Byte   byte
}

// Reset is sent to observers after the machine has been reset.
type Reset struct{}

type Machine struct {
	Bus       *bus.Bus
	Scheduler *sched.Scheduler

	cfg   Config
	stack *memory.Stack

	uarts    []*uart.UART
	leds     []*led.LED
	displays []*sevenseg.Display

	// session is bumped by Reset while sessionLock is held for writing; callbacks queued for one
	// session run through InSession under the read lock.
	sessionLock sync.RWMutex
	session     uint64

	observersLock sync.Mutex
	observers     interfaces.ObserverList
}

// New builds a machine from cfg. Devices are created through the periph driver registry.
func New(cfg Config) (m *Machine, err error) {
	m = &Machine{
		Bus:       bus.New(),
		Scheduler: sched.New(),
		cfg:       cfg,
		observers: make(interfaces.ObserverList),
	}

	for _, rc := range cfg.Regions {
		if err = rc.validate(); err != nil {
			return nil, err
		}

		var r memory.Backing
		switch rc.Kind {
		case KindRAM:
			r = memory.NewRAM(rc.Name, uint32(rc.Base), uint32(rc.Size))
		case KindStack:
			if m.stack != nil {
				return nil, fmt.Errorf("machine: region %q: only one stack region is supported", rc.Name)
			}
			m.stack = memory.NewStack(rc.Name, uint32(rc.Top), uint32(rc.Size))
			r = m.stack
		}
		if err = m.Bus.AttachRegion(r); err != nil {
			return nil, err
		}
	}

	for _, dc := range cfg.Devices {
		var dev periph.Device
		dev, err = periph.Open(dc, m.Scheduler)
		if err != nil {
			return nil, fmt.Errorf("machine: %w", err)
		}
		if err = m.Bus.Attach(dev); err != nil {
			return nil, err
		}

		switch d := dev.(type) {
		case *uart.UART:
			name := d.Name()
			d.SetTransmitHandler(func(b byte) {
				m.notify(Transmitted{Device: name, Byte: b})
			})
			m.uarts = append(m.uarts, d)
		case *led.LED:
			m.leds = append(m.leds, d)
		case *sevenseg.Display:
			m.displays = append(m.displays, d)
		}
	}

	return m, nil
}

func (m *Machine) Config() Config { return m.cfg }

// SetLogger sends bus and device traces to w.
func (m *Machine) SetLogger(w io.Writer) {
	m.Bus.Logger = w
	for _, u := range m.uarts {
		u.Logger = w
	}
	for _, l := range m.leds {
		l.Logger = w
	}
	for _, d := range m.displays {
		d.Logger = w
	}
}

func (m *Machine) Read(addr uint32) uint32 {
	return m.Bus.Read(addr)
}

func (m *Machine) Write(addr uint32, value uint32) bool {
	return m.Bus.Write(addr, value)
}

func (m *Machine) Content(addr uint32) (uint32, bool) {
	return m.Bus.Content(addr)
}

func (m *Machine) Stack() *memory.Stack { return m.stack }

// SetStackPointer records the Processor's live $sp.
func (m *Machine) SetStackPointer(sp uint32) error {
	if m.stack == nil {
		return ErrNoStack
	}
	m.stack.SetStackPointer(sp)
	return nil
}

// Advance moves simulated time forward, running due device timers.
func (m *Machine) Advance(d time.Duration) int {
	return m.Scheduler.Advance(d)
}

// Reset drops every pending timer, clears all memory and returns every device to power-on state.
// A callback already taken off the scheduler either finishes before the reset starts or, when it
// goes through InSession, is skipped.
func (m *Machine) Reset() {
	m.sessionLock.Lock()
	m.Scheduler.Clear()
	m.Bus.Reset()
	m.session++
	m.sessionLock.Unlock()

	m.notify(Reset{})
}

// Session identifies the current run between two resets.
func (m *Machine) Session() uint64 {
	defer m.sessionLock.RUnlock()
	m.sessionLock.RLock()
	return m.session
}

// InSession runs fn if no reset happened since session was taken, and keeps Reset out until fn
// returns. fn must not call Reset. It reports whether fn ran.
func (m *Machine) InSession(session uint64, fn func()) bool {
	defer m.sessionLock.RUnlock()
	m.sessionLock.RLock()

	if session != m.session {
		return false
	}
	fn()
	return true
}

// LoadProgram resets the machine and stores p's words.
func (m *Machine) LoadProgram(p Program) error {
	m.Reset()

	for _, seg := range p.Segments {
		for i, w := range seg.Words {
			addr := uint32(seg.Address) + uint32(i*4)
			if !m.Write(addr, uint32(w)) {
				return fmt.Errorf("machine: load: segment at %v: address $%08x is unmapped", seg.Address, addr)
			}
		}
	}

	if p.StackPointer != 0 {
		return m.SetStackPointer(uint32(p.StackPointer))
	}
	return nil
}

func (m *Machine) UARTs() []*uart.UART           { return m.uarts }
func (m *Machine) LEDs() []*led.LED              { return m.leds }
func (m *Machine) Displays() []*sevenseg.Display { return m.displays }
func (m *Machine) Devices() []periph.Device      { return m.Bus.Devices() }

func (m *Machine) Device(name string) (periph.Device, error) {
	return m.Bus.Device(name)
}

// UART returns the named UART, or the first one when name is empty.
func (m *Machine) UART(name string) (*uart.UART, error) {
	for _, u := range m.uarts {
		if name == "" || u.Name() == name {
			return u, nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("machine: %w: no uart configured", periph.ErrNoDevice)
	}
	return nil, fmt.Errorf("machine: %w %q", periph.ErrNoDevice, name)
}

var _ interfaces.Observable = (*Machine)(nil)

// Subscribe registers observer for Transmitted and Reset notifications.
func (m *Machine) Subscribe(observer interfaces.Observer) {
	defer m.observersLock.Unlock()
	m.observersLock.Lock()
	m.observers[observer] = observer
}

func (m *Machine) Unsubscribe(observer interfaces.Observer) {
	defer m.observersLock.Unlock()
	m.observersLock.Lock()
	delete(m.observers, observer)
}

func (m *Machine) notify(object interface{}) {
	m.observersLock.Lock()
	observers := m.observers.Snapshot()
	m.observersLock.Unlock()

	for _, o := range observers {
		o.Notify(object)
	}
}
