// Package console attaches the host terminal to the emulated UART: keystrokes are received by the
// UART and transmitted bytes are printed.
package console

import (
	"context"
	"errors"
	"fmt"
	"golang.org/x/term"
	"io"
	"os"
	"sync"
)

// ErrInterrupted is returned by Run when Ctrl-C is typed while the terminal is in raw mode.
var ErrInterrupted = errors.New("console: interrupted")

const ctrlC = 0x03

// Receiver takes keystrokes. *bridge.Bridge implements it.
type Receiver interface {
	ReceiveByte(c byte) bool
}

type Console struct {
	in  io.Reader
	out io.Writer
	r   Receiver

	mu  sync.Mutex
	raw bool
}

func New(in io.Reader, out io.Writer, r Receiver) *Console {
	return &Console{in: in, out: out, r: r}
}

// IsTerminal reports whether in is an interactive terminal.
func IsTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) RegisterChanged(_ uint32, _ uint32) {}

func (c *Console) ByteTransmitted(b byte) {
	defer c.mu.Unlock()
	c.mu.Lock()

	if b == '\n' && c.raw {
		// raw mode disables output post-processing:
		_, _ = io.WriteString(c.out, "\r\n")
		return
	}
	_, _ = c.out.Write([]byte{b})
}

// translate maps a keystroke to the byte the UART receives.
func translate(k byte) byte {
	switch k {
	case '\r':
		return '\n'
	case 0x7f:
		return '\b'
	default:
		return k
	}
}

// Run reads keystrokes until ctx is done or input ends. A terminal is switched to raw mode for the
// duration and restored on return.
func (c *Console) Run(ctx context.Context) (err error) {
	if f, ok := c.in.(*os.File); ok && IsTerminal(f) {
		var st *rawState
		if st, err = makeRaw(f.Fd()); err != nil {
			return fmt.Errorf("console: %w", err)
		}
		c.mu.Lock()
		c.raw = true
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			c.raw = false
			c.mu.Unlock()
			if rerr := restore(f.Fd(), st); rerr != nil && err == nil {
				err = fmt.Errorf("console: %w", rerr)
			}
		}()
	}

	errc := make(chan error, 1)
	go func() { errc <- c.readLoop() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err = <-errc:
		return err
	}
}

func (c *Console) readLoop() error {
	buf := make([]byte, 64)
	for {
		n, err := c.in.Read(buf)
		for _, k := range buf[:n] {
			c.mu.Lock()
			raw := c.raw
			c.mu.Unlock()
			if raw && k == ctrlC {
				return ErrInterrupted
			}
			c.r.ReceiveByte(translate(k))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("console: read: %w", err)
		}
	}
}
