package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	err := run()
	if err == nil {
		return
	}

	// Container exit codes pass through untouched.
	var ec exitCodeError
	if errors.As(err, &ec) {
		os.Exit(ec.code)
	}

	slog.Error("kiln terminated", "error", err)
	os.Exit(1)
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &appHandle{}
	defer app.close()

	return newRootCmd(app).ExecuteContext(ctx)
}
