// Command authsetup logs into a running portal through headless Chromium and
// saves the signed-in browser state to auth.json for later browser runs.
//
// Usage:
//
//	go run ./cmd/authsetup capture --base-url http://localhost:8080
//	go run ./cmd/authsetup verify --state auth.json
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/gisportal/internal/obs"
)

func main() {
	obs.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
