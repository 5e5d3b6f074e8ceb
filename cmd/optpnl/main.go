package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"optpnl/internal/cli"
	"optpnl/internal/logging"
	"optpnl/internal/security"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger()
	if err := cli.Execute(ctx, logger, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", security.Redact(err.Error()))
		stop()
		os.Exit(1)
	}
}
