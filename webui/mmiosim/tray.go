//go:build !linux

package main

import (
	"context"
	"github.com/getlantern/systray"
	"log"
)

func createSystray(ctx context.Context) {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()

	// Start up a systray:
	systray.Run(trayStart, trayExit)
}

func trayExit() {
	log.Println("tray: finished quitting")
}

func trayStart() {
	systray.SetTitle("mmiosim")
	systray.SetTooltip("mmiosim - memory-mapped peripheral simulator")
	mOpenWeb := systray.AddMenuItem("Web UI", "Opens the web UI in the default browser")
	mReset := systray.AddMenuItem("Reset machine", "Clears memory and resets every device")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit")

	openWebUI()

	// Menu item click handler:
	go func() {
		for {
			select {
			case <-mOpenWeb.ClickedCh:
				openWebUI()
			case <-mReset.ClickedCh:
				if resetMachine != nil {
					resetMachine()
				}
			case <-mQuit.ClickedCh:
				log.Println("tray: requesting quit")
				quit()
				return
			}
		}
	}()
}
