//go:build !statsview

package statsview

import "io"

func Launch(_ io.Writer) {}

func Available() bool {
	return false
}
