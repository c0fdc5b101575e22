package console

import (
	"golang.org/x/sys/windows"
	"golang.org/x/term"
	"os"
)

type rawState struct {
	saved *term.State
}

func makeRaw(fd uintptr) (*rawState, error) {
	saved, err := term.MakeRaw(int(fd))
	if err != nil {
		return nil, err
	}
	enableVirtualTerminal()
	return &rawState{saved: saved}, nil
}

func restore(fd uintptr, st *rawState) error {
	return term.Restore(int(fd), st.saved)
}

// enableVirtualTerminal lets programs on the Processor drive the console with ANSI sequences.
func enableVirtualTerminal() {
	h := windows.Handle(os.Stdout.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return
	}
	_ = windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
}
