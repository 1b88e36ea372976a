// Package main is the wakeproof process entrypoint. Platform timers invoke
// it as `wakeproof fire <id>`.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/wakeproof/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	exitCode := app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}
