package util

import (
	"io"
	"log"
	"os"
	"runtime/debug"
	"sync"
)

// PanicSafeLogger writes log output to a file and, unless quieted, to a second writer. The file is
// synced by FlushLogger so the tail of the log survives a crash.
type PanicSafeLogger struct {
	f   *os.File
	tee io.Writer

	mu    sync.Mutex
	quiet bool
}

var std *PanicSafeLogger

func NewPanicSafeLogger(f *os.File) *PanicSafeLogger {
	return NewPanicSafeLoggerTo(f, os.Stderr)
}

// NewPanicSafeLoggerTo tees to tee instead of stderr. It becomes the logger FlushLogger syncs.
func NewPanicSafeLoggerTo(f *os.File, tee io.Writer) *PanicSafeLogger {
	std = &PanicSafeLogger{
		f:   f,
		tee: tee,
	}
	return std
}

func (l *PanicSafeLogger) Write(p []byte) (n int, err error) {
	defer l.mu.Unlock()
	l.mu.Lock()

	n, err = l.f.Write(p)
	if l.quiet || l.tee == nil {
		return
	}
	_, _ = l.tee.Write(p)
	return
}

// Quiet stops the tee so only the file receives output. Used when the terminal is attached to
// the UART.
func (l *PanicSafeLogger) Quiet() {
	defer l.mu.Unlock()
	l.mu.Lock()
	l.quiet = true
}

func (l *PanicSafeLogger) Flush() error {
	return l.f.Sync()
}

func FlushLogger() error {
	if std == nil {
		return nil
	}
	return std.Flush()
}

func LogPanic(err any) {
	log.Printf("panic: %v\n%s\n", err, string(debug.Stack()))
	_ = FlushLogger()
}
