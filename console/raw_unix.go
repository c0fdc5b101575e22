//go:build !windows

package console

import (
	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
)

type rawState struct {
	saved unix.Termios
}

func makeRaw(fd uintptr) (*rawState, error) {
	st := &rawState{}
	if err := termios.Tcgetattr(fd, &st.saved); err != nil {
		return nil, err
	}

	raw := st.saved
	termios.Cfmakeraw(&raw)
	// one keystroke per read:
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := termios.Tcsetattr(fd, termios.TCSANOW, &raw); err != nil {
		return nil, err
	}
	return st, nil
}

func restore(fd uintptr, st *rawState) error {
	return termios.Tcsetattr(fd, termios.TCSANOW, &st.saved)
}
