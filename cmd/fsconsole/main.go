package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fsconsole/internal/cli"
)

func main() {
	// Interrupts cancel in-flight requests; the console handles ctrl+c itself.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
