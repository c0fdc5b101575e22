package main

import "context"

func createSystray(ctx context.Context) {
	// just open the browser UI on startup:
	openWebUI()
	// wait for an interrupt so the process does not exit immediately:
	<-ctx.Done()
}
