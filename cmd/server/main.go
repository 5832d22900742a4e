// Command server runs the GIS portal: the landing and login pages, the crash
// report tunnel and the web vitals beacon.
//
// Usage:
//
//	MASTER_KEY=$(openssl rand -hex 32) go run ./cmd/server
//	go run ./cmd/server --test --addr :8080
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/gisportal/internal/config"
	"github.com/kuitang/gisportal/internal/obs"
)

func main() {
	obs.Init()
	testMode, addr := config.ParseFlags()
	cfg := config.MustLoadConfig(testMode, addr)
	cfg.PrintStartupSummary()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()
	if err != nil {
		obs.Pkg("main").Error("server_failed", "error", err)
		os.Exit(1)
	}
}
