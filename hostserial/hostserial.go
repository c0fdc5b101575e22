// Package hostserial connects the emulated UART to a serial port of the host.
package hostserial

import (
	"context"
	"errors"
	"fmt"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"io"
	"log"
	"sync"
)

const DefaultBaud = 115200

// bytes queued for the port before transmits are dropped:
const txBacklog = 4096

// Receiver takes bytes arriving from the port. *bridge.Bridge implements it.
type Receiver interface {
	ReceiveByte(c byte) bool
}

type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s (USB %s:%s %s)", p.Name, p.VID, p.PID, p.SerialNumber)
}

// List enumerates the serial ports of the host.
func List() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("hostserial: list: %w", err)
	}

	list := make([]PortInfo, 0, len(ports))
	for _, port := range ports {
		list = append(list, PortInfo{
			Name:         port.Name,
			IsUSB:        port.IsUSB,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
		})
	}
	return list, nil
}

// Open opens a host port at 8N1. A baud of zero selects DefaultBaud.
func Open(name string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}

	f, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("hostserial: open %s: %w", name, err)
	}
	return f, nil
}

// Passthrough copies bytes between a port and the UART. It is a bridge.Sink: transmitted bytes
// are queued and written to the port by Run.
type Passthrough struct {
	port io.ReadWriteCloser
	r    Receiver

	q         chan byte
	closeOnce sync.Once

	mu      sync.Mutex
	dropped uint64
}

func New(port io.ReadWriteCloser, r Receiver) *Passthrough {
	return &Passthrough{
		port: port,
		r:    r,
		q:    make(chan byte, txBacklog),
	}
}

func (p *Passthrough) RegisterChanged(_ uint32, _ uint32) {}

func (p *Passthrough) ByteTransmitted(b byte) {
	select {
	case p.q <- b:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
	}
}

// Dropped is the number of transmitted bytes lost because the port could not keep up.
func (p *Passthrough) Dropped() uint64 {
	defer p.mu.Unlock()
	p.mu.Lock()
	return p.dropped
}

// Run copies in both directions until ctx is done or the port fails, then closes the port.
func (p *Passthrough) Run(ctx context.Context) error {
	errc := make(chan error, 2)

	go func() { errc <- p.readLoop() }()
	go func() { errc <- p.writeLoop(ctx) }()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errc:
	}

	p.Close()
	return err
}

func (p *Passthrough) Close() {
	p.closeOnce.Do(func() {
		if err := p.port.Close(); err != nil {
			log.Printf("hostserial: close: %v\n", err)
		}
	})
}

func (p *Passthrough) readLoop() error {
	buf := make([]byte, 256)
	for {
		n, err := p.port.Read(buf)
		for _, c := range buf[:n] {
			if !p.r.ReceiveByte(c) {
				log.Printf("hostserial: receive: dropped $%02x\n", c)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("hostserial: port closed")
			}
			return fmt.Errorf("hostserial: read: %w", err)
		}
	}
}

func (p *Passthrough) writeLoop(ctx context.Context) error {
	buf := make([]byte, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-p.q:
			buf = append(buf[:0], b)
			// gather whatever else is already queued:
		drain:
			for len(buf) < cap(buf) {
				select {
				case b = <-p.q:
					buf = append(buf, b)
				default:
					break drain
				}
			}

			if err := sendSerial(p.port, buf); err != nil {
				return fmt.Errorf("hostserial: write: %w", err)
			}
		}
	}
}

func sendSerial(f io.Writer, buf []byte) error {
	sent := 0
	for sent < len(buf) {
		n, e := f.Write(buf[sent:])
		if e != nil {
			return e
		}
		sent += n
	}
	return nil
}
