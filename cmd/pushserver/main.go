package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/pushserver/app"
	"github.com/dmitrymomot/pushserver/core/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pushserver:", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		a.Logger().Error("push server stopped", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
