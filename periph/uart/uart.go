package uart

import (
	"errors"
	"fmt"
	"io"
	"mmiosim/interfaces"
	"mmiosim/periph"
	"mmiosim/sched"
	"sync"
	"time"
)

// register offsets from the device base:
const (
	DataOffset    uint32 = 0x00
	StatusOffset  uint32 = 0x04
	ControlOffset uint32 = 0x08
)

// status register bits:
const (
	StatusTxReady         uint8 = 0x01
	StatusRxDataAvailable uint8 = 0x02
	StatusTxBusy          uint8 = 0x04
	StatusRxBusy          uint8 = 0x08
)

// DefaultBase is the EDSim-style location of the UART in the MIPS address map.
const DefaultBase uint32 = 0x10000040

// bits per character on the wire: start + 8 data + stop
const bitsPerChar = 10

var ErrOverflow = errors.New("receive fifo full")

type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued byte to make room.
	DropOldest OverflowPolicy = "drop-oldest"
	// DropNewest rejects the incoming byte.
	DropNewest OverflowPolicy = "drop-newest"
)

type Options struct {
	// CharTime is how long TX_BUSY stays asserted after a data write. Zero means the transmitter
	// is ready again immediately.
	CharTime interfaces.Duration `json:"charTime,omitempty"`
	// BaudRate derives CharTime when CharTime is zero. Zero leaves the transmitter instantaneous.
	BaudRate int `json:"baudRate,omitempty"`

	// FIFOCapacity bounds the receive queue (bytes waiting behind the data register).
	// Zero means unbounded.
	FIFOCapacity int            `json:"fifoCapacity,omitempty"`
	Overflow     OverflowPolicy `json:"overflow,omitempty"`
}

// CharDuration returns the effective transmit time of one character.
func (o Options) CharDuration() time.Duration {
	if o.CharTime > 0 {
		return o.CharTime.D()
	}
	if o.BaudRate > 0 {
		return time.Second * bitsPerChar / time.Duration(o.BaudRate)
	}
	return 0
}

type State struct {
	Data    uint8 `json:"data"`
	Status  uint8 `json:"status"`
	Control uint8 `json:"control"`
	Queued  int   `json:"queued"`
}

func (s State) TxReady() bool         { return s.Status&StatusTxReady != 0 }
func (s State) RxDataAvailable() bool { return s.Status&StatusRxDataAvailable != 0 }

type Stats struct {
	Transmitted uint64 `json:"transmitted"`
	Received    uint64 `json:"received"`
	Dropped     uint64 `json:"dropped"`
}

// UART is a byte-oriented serial port with a data/status/control register trio.
//
// Writing the data register transmits a byte through the transmit handler. Bytes arriving from
// outside via ReceiveByte are placed in the data register, or queued behind it while an earlier
// byte is still unread; each read of the data register exposes exactly one byte.
type UART struct {
	name     string
	base     uint32
	s        *sched.Scheduler
	opts     Options
	charTime time.Duration

	// Logger receives a trace line per register access when non-nil. Set before use.
	Logger io.Writer

	mu         sync.Mutex
	regs       *periph.RegisterFile
	rx         []byte
	txSeq      uint64
	pending    *sched.Event
	stats      Stats
	onTransmit func(b byte)
}

func New(name string, base uint32, opts Options, s *sched.Scheduler) (*UART, error) {
	switch opts.Overflow {
	case "":
		opts.Overflow = DropOldest
	case DropOldest, DropNewest:
	default:
		return nil, fmt.Errorf("uart: unknown overflow policy %q", opts.Overflow)
	}
	if opts.FIFOCapacity < 0 {
		return nil, fmt.Errorf("uart: negative fifo capacity %d", opts.FIFOCapacity)
	}

	charTime := opts.CharDuration()
	if charTime > 0 && s == nil {
		return nil, fmt.Errorf("uart: a scheduler is required for a %v character time", charTime)
	}

	u := &UART{
		name:     name,
		base:     base,
		s:        s,
		opts:     opts,
		charTime: charTime,
		regs:     periph.NewRegisterFile(base, registers()),
	}
	return u, nil
}

func registers() []periph.Register {
	return []periph.Register{
		{Name: "data", Offset: DataOffset, Role: periph.RoleData, Access: periph.ReadWrite, Width: 8},
		{
			Name: "status", Offset: StatusOffset, Role: periph.RoleStatus, Access: periph.ReadWrite, Width: 8,
			Reset: uint32(StatusTxReady),
			Bits: []periph.BitField{
				{Name: "TX_READY", Mask: uint32(StatusTxReady)},
				{Name: "RX_DATA_AVAILABLE", Mask: uint32(StatusRxDataAvailable)},
				{Name: "TX_BUSY", Mask: uint32(StatusTxBusy)},
				{Name: "RX_BUSY", Mask: uint32(StatusRxBusy)},
			},
		},
		{Name: "control", Offset: ControlOffset, Role: periph.RoleControl, Access: periph.ReadWrite, Width: 8},
	}
}

func (u *UART) Name() string                 { return u.name }
func (u *UART) Driver() string               { return driverName }
func (u *UART) Base() uint32                 { return u.base }
func (u *UART) Size() uint32                 { return u.regs.Size() }
func (u *UART) Registers() []periph.Register { return u.regs.Registers() }
func (u *UART) Options() Options             { return u.opts }

// SetTransmitHandler sets the function called with every byte written to the data register.
// The handler runs outside the device lock and may call back into the device.
func (u *UART) SetTransmitHandler(fn func(b byte)) {
	defer u.mu.Unlock()
	u.mu.Lock()
	u.onTransmit = fn
}

func (u *UART) Read(addr uint32) (value uint32) {
	defer u.mu.Unlock()
	u.mu.Lock()

	switch addr - u.base {
	case DataOffset:
		value = uint32(u.consumeLocked())
	case StatusOffset, ControlOffset:
		value, _ = u.regs.Load(addr)
	default:
		return 0
	}

	if u.Logger != nil {
		fmt.Fprintf(u.Logger, "uart[%s][$%08x] -> $%02x\n", u.name, addr, value)
	}
	return
}

func (u *UART) Write(addr uint32, value uint32) bool {
	switch addr - u.base {
	case DataOffset:
		u.transmit(byte(value))
		return true
	case StatusOffset, ControlOffset:
		u.mu.Lock()
		u.regs.Store(addr, value)
		if u.Logger != nil {
			fmt.Fprintf(u.Logger, "uart[%s][$%08x] <- $%02x\n", u.name, addr, value&0xFF)
		}
		u.mu.Unlock()
		return true
	default:
		return false
	}
}

func (u *UART) Peek(addr uint32) (uint32, bool) {
	defer u.mu.Unlock()
	u.mu.Lock()

	if !u.regs.Has(addr) {
		return 0, false
	}
	return u.regs.Get(addr), true
}

func (u *UART) transmit(b byte) {
	u.mu.Lock()

	status := u.status()
	if u.charTime > 0 {
		// busy for one character time; a write while busy restarts the timer:
		status &^= StatusTxReady
		status |= StatusTxBusy
		if u.pending != nil {
			u.s.Cancel(u.pending)
		}
		u.txSeq++
		seq := u.txSeq
		u.pending = u.s.After(u.charTime, func() { u.transmitDone(seq) })
	} else {
		status |= StatusTxReady
		status &^= StatusTxBusy
	}
	u.setStatus(status)
	u.stats.Transmitted++

	if u.Logger != nil {
		fmt.Fprintf(u.Logger, "uart[%s][$%08x] <- $%02x (tx)\n", u.name, u.base+DataOffset, b)
	}
	fn := u.onTransmit
	u.mu.Unlock()

	if fn != nil {
		fn(b)
	}
}

func (u *UART) transmitDone(seq uint64) {
	defer u.mu.Unlock()
	u.mu.Lock()

	// a later write or a reset superseded this character:
	if seq != u.txSeq {
		return
	}

	status := u.status()
	status |= StatusTxReady
	status &^= StatusTxBusy
	u.setStatus(status)
	u.pending = nil
}

// ReceiveByte delivers a byte arriving from outside the machine. It reports false when the byte
// was rejected because the receive FIFO is full under the DropNewest policy.
func (u *UART) ReceiveByte(b byte) bool {
	defer u.mu.Unlock()
	u.mu.Lock()

	status := u.status()
	if status&StatusRxDataAvailable == 0 && len(u.rx) == 0 {
		u.regs.Set(u.base+DataOffset, uint32(b))
		u.setStatus(status | StatusRxDataAvailable)
		u.stats.Received++
		return true
	}

	accepted := u.enqueueLocked(b)
	if accepted {
		u.stats.Received++
	}

	if status&StatusRxDataAvailable == 0 {
		// the flag was cleared by a status write while bytes were queued; expose the oldest:
		u.regs.Set(u.base+DataOffset, uint32(u.dequeueLocked()))
		u.setStatus(status | StatusRxDataAvailable)
	}
	return accepted
}

// ReceiveChar delivers a one-character string. Anything that is not exactly one byte long is
// rejected with periph.ErrInvalidInput and leaves the device untouched.
func (u *UART) ReceiveChar(s string) error {
	if len(s) != 1 {
		return fmt.Errorf("uart: receive %q: %w", s, periph.ErrInvalidInput)
	}
	if !u.ReceiveByte(s[0]) {
		return fmt.Errorf("uart: receive %q: %w", s, ErrOverflow)
	}
	return nil
}

func (u *UART) consumeLocked() byte {
	data := byte(u.regs.Get(u.base + DataOffset))
	status := u.status()
	if status&StatusRxDataAvailable == 0 {
		return data
	}

	status &^= StatusRxDataAvailable
	if len(u.rx) > 0 {
		u.regs.Set(u.base+DataOffset, uint32(u.dequeueLocked()))
		status |= StatusRxDataAvailable
	}
	u.setStatus(status)
	return data
}

func (u *UART) enqueueLocked(b byte) bool {
	if u.opts.FIFOCapacity > 0 && len(u.rx) >= u.opts.FIFOCapacity {
		u.stats.Dropped++
		if u.opts.Overflow == DropNewest {
			return false
		}
		u.dequeueLocked()
	}
	u.rx = append(u.rx, b)
	return true
}

func (u *UART) dequeueLocked() byte {
	b := u.rx[0]
	copy(u.rx, u.rx[1:])
	u.rx = u.rx[:len(u.rx)-1]
	return b
}

func (u *UART) status() uint8 {
	return uint8(u.regs.Get(u.base + StatusOffset))
}

func (u *UART) setStatus(status uint8) {
	u.regs.Set(u.base+StatusOffset, uint32(status))
}

// Reset clears all registers and the receive queue and cancels a pending transmitter timer.
func (u *UART) Reset() {
	defer u.mu.Unlock()
	u.mu.Lock()

	u.regs.Reset()
	u.rx = nil
	u.txSeq++
	if u.pending != nil {
		u.s.Cancel(u.pending)
		u.pending = nil
	}
	u.stats = Stats{}
}

func (u *UART) State() State {
	defer u.mu.Unlock()
	u.mu.Lock()

	return State{
		Data:    byte(u.regs.Get(u.base + DataOffset)),
		Status:  u.status(),
		Control: byte(u.regs.Get(u.base + ControlOffset)),
		Queued:  len(u.rx),
	}
}

func (u *UART) Stats() Stats {
	defer u.mu.Unlock()
	u.mu.Lock()
	return u.stats
}

func (u *UART) IsTxReady() bool         { return u.State().TxReady() }
func (u *UART) IsRxDataAvailable() bool { return u.State().RxDataAvailable() }
