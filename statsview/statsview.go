//go:build statsview

package statsview

import (
	"fmt"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"io"
)

const Address = "localhost:5502"
const url = "/debug/statsview"

// Launch starts the stats server on its own goroutine.
func Launch(output io.Writer) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(Address))
		mgr := statsview.New()
		mgr.Start()
	}()

	fmt.Fprintf(output, "stats server available at %s%s\n", Address, url)
}

func Available() bool {
	return true
}
