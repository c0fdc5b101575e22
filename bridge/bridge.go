// Package bridge keeps device registers observable from outside the emulated machine and carries
// external input into the UART.
//
// The Processor runs at its own speed; the bridge samples watched addresses on a fixed cadence and
// forwards only the values that changed since the previous sample.
package bridge

import (
	"context"
	"fmt"
	"log"
	"mmiosim/interfaces"
	"mmiosim/machine"
	"mmiosim/periph"
	"mmiosim/periph/uart"
	"mmiosim/util"
	"sort"
	"sync"
	"time"
)

const (
	DefaultTick           = time.Millisecond
	DefaultUARTPeriod     = time.Millisecond
	DefaultDisplayPeriod  = 100 * time.Millisecond
	DefaultInterCharDelay = 100 * time.Millisecond
	DefaultLoopbackDelay  = 200 * time.Millisecond
	DefaultBannerDelay    = 2 * time.Second
)

type Options struct {
	// UART names the device external input goes to; empty selects the first UART.
	UART string

	// Tick is the host timer period of Run.
	Tick time.Duration
	// UARTPeriod and DisplayPeriod are the sample periods WatchDevices uses.
	UARTPeriod    time.Duration
	DisplayPeriod time.Duration

	// InterCharDelay spaces the bytes of ReceiveString.
	InterCharDelay time.Duration

	// Loopback feeds every transmitted byte back into the receive path after LoopbackDelay.
	Loopback      bool
	LoopbackDelay time.Duration

	// Banner, when set, is received BannerDelay after the bridge is created.
	Banner      string
	BannerDelay time.Duration

	// Stats records sample pass latencies when non-nil.
	Stats *Stats
}

func (o *Options) defaults() {
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.UARTPeriod <= 0 {
		o.UARTPeriod = DefaultUARTPeriod
	}
	if o.DisplayPeriod <= 0 {
		o.DisplayPeriod = DefaultDisplayPeriod
	}
	if o.InterCharDelay <= 0 {
		o.InterCharDelay = DefaultInterCharDelay
	}
	if o.LoopbackDelay <= 0 {
		o.LoopbackDelay = DefaultLoopbackDelay
	}
	if o.BannerDelay <= 0 {
		o.BannerDelay = DefaultBannerDelay
	}
}

type watch struct {
	addr    uint32
	period  time.Duration
	next    time.Duration
	last    uint32
	defined bool
	seen    bool
}

type change struct {
	addr  uint32
	value uint32
}

type Bridge struct {
	m    *machine.Machine
	u    *uart.UART
	sink Sink
	opts Options

	observer interfaces.Observer

	mu       sync.Mutex
	watches  map[uint32]*watch
	order    []*watch
	loopback bool
}

// New creates a bridge between m and sink. The bridge observes m until Close.
func New(m *machine.Machine, sink Sink, opts Options) (*Bridge, error) {
	opts.defaults()

	b := &Bridge{
		m:        m,
		sink:     sink,
		opts:     opts,
		watches:  make(map[uint32]*watch),
		loopback: opts.Loopback,
	}

	if len(m.UARTs()) > 0 || opts.UART != "" {
		u, err := m.UART(opts.UART)
		if err != nil {
			return nil, fmt.Errorf("bridge: %w", err)
		}
		b.u = u
	}

	b.observer = interfaces.NewObserver(b.notify)
	m.Subscribe(b.observer)

	if opts.Banner != "" && b.u != nil {
		session := m.Session()
		banner := []byte(opts.Banner)
		m.Scheduler.After(opts.BannerDelay, func() { b.stream(session, banner) })
	}

	return b, nil
}

// Close stops observing the machine.
func (b *Bridge) Close() {
	b.m.Unsubscribe(b.observer)
}

func (b *Bridge) Machine() *machine.Machine { return b.m }
func (b *Bridge) UART() *uart.UART          { return b.u }
func (b *Bridge) Options() Options          { return b.opts }

func (b *Bridge) notify(object interface{}) {
	switch ev := object.(type) {
	case machine.Transmitted:
		if b.u == nil || ev.Device != b.u.Name() {
			return
		}
		b.sink.ByteTransmitted(ev.Byte)

		if b.Loopback() {
			c := ev.Byte
			session := b.m.Session()
			b.m.Scheduler.After(b.opts.LoopbackDelay, func() {
				b.m.InSession(session, func() { b.ReceiveByte(c) })
			})
		}

	case machine.Reset:
		defer b.mu.Unlock()
		b.mu.Lock()
		for _, w := range b.order {
			w.seen = false
			w.next = 0
		}
	}
}

func (b *Bridge) SetLoopback(enabled bool) {
	defer b.mu.Unlock()
	b.mu.Lock()
	b.loopback = enabled
}

func (b *Bridge) Loopback() bool {
	defer b.mu.Unlock()
	b.mu.Lock()
	return b.loopback
}

// Watch samples addr every period. Watching an address again changes its period.
func (b *Bridge) Watch(addr uint32, period time.Duration) {
	defer b.mu.Unlock()
	b.mu.Lock()

	if w, ok := b.watches[addr]; ok {
		w.period = period
		return
	}

	w := &watch{addr: addr, period: period}
	b.watches[addr] = w
	b.order = append(b.order, w)
	sort.Slice(b.order, func(i, j int) bool { return b.order[i].addr < b.order[j].addr })
}

// WatchDevice watches every register of dev.
func (b *Bridge) WatchDevice(dev periph.Device, period time.Duration) {
	for _, r := range dev.Registers() {
		b.Watch(dev.Base()+r.Offset, period)
	}
}

// WatchDevices watches every device of the machine, UARTs at the UART period and everything else
// at the display period.
func (b *Bridge) WatchDevices() {
	for _, dev := range b.m.Devices() {
		period := b.opts.DisplayPeriod
		if _, ok := dev.(*uart.UART); ok {
			period = b.opts.UARTPeriod
		}
		b.WatchDevice(dev, period)
	}
}

// Watched returns the watched addresses in ascending order.
func (b *Bridge) Watched() []uint32 {
	defer b.mu.Unlock()
	b.mu.Lock()

	addrs := make([]uint32, len(b.order))
	for i, w := range b.order {
		addrs[i] = w.addr
	}
	return addrs
}

// Sample reads every watch due at now and reports the ones that changed to the sink. It returns
// the number of changes reported.
func (b *Bridge) Sample(now time.Duration) int {
	start := time.Now()

	var changes []change
	b.mu.Lock()
	for _, w := range b.order {
		if now < w.next {
			continue
		}
		w.next = now + w.period

		value, defined := b.m.Content(w.addr)
		if w.seen && value == w.last && defined == w.defined {
			continue
		}
		w.seen, w.last, w.defined = true, value, defined
		changes = append(changes, change{addr: w.addr, value: value})
	}
	b.mu.Unlock()

	for _, c := range changes {
		b.sink.RegisterChanged(c.addr, c.value)
	}

	if b.opts.Stats != nil {
		b.opts.Stats.Record(time.Since(start), len(changes))
	}
	return len(changes)
}

// Run samples on the host timer until ctx is done. Each tick first advances the machine's
// scheduler by the wall time elapsed since the previous tick.
func (b *Bridge) Run(ctx context.Context) error {
	defer func() {
		if err := recover(); err != nil {
			util.LogPanic(err)
			panic(err)
		}
	}()

	ticker := time.NewTicker(b.opts.Tick)
	defer ticker.Stop()

	start := time.Now()
	last := start
	b.Sample(0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			b.m.Advance(t.Sub(last))
			last = t
			b.Sample(t.Sub(start))
		}
	}
}

func (b *Bridge) target() (*uart.UART, error) {
	if b.u == nil {
		return nil, fmt.Errorf("bridge: %w: no uart", periph.ErrNoDevice)
	}
	return b.u, nil
}

// ReceiveByte delivers b to the UART now. It reports false if the UART rejected it.
func (b *Bridge) ReceiveByte(c byte) bool {
	u, err := b.target()
	if err != nil {
		return false
	}
	if !u.ReceiveByte(c) {
		log.Printf("bridge: receive: uart %s dropped $%02x\n", u.Name(), c)
		return false
	}
	return true
}

// ReceiveChar delivers a single character string to the UART now.
func (b *Bridge) ReceiveChar(s string) error {
	u, err := b.target()
	if err != nil {
		return err
	}
	return u.ReceiveChar(s)
}

// ReceiveString delivers s one byte at a time: the first byte now and each following byte
// InterCharDelay later on the machine's scheduler. A machine reset abandons the rest.
func (b *Bridge) ReceiveString(s []byte) error {
	if _, err := b.target(); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}

	b.stream(b.m.Session(), append([]byte(nil), s...))
	return nil
}

// stream delivers s[0] and queues the rest, unless the machine was reset after session began.
func (b *Bridge) stream(session uint64, s []byte) {
	b.m.InSession(session, func() {
		b.ReceiveByte(s[0])
		if len(s) == 1 {
			return
		}

		rest := s[1:]
		b.m.Scheduler.After(b.opts.InterCharDelay, func() { b.stream(session, rest) })
	})
}
