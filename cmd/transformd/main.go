// Command transformd is the supervisor entrypoint. It also serves as the
// sandbox's own executable: invoked with sandbox.RunnerArg as its first
// argument, it dispatches straight into sandbox.Run instead of starting
// the supervisor, so a single compiled binary plays both roles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobmcallan/transformd/internal/app"
	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/sandbox"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == sandbox.RunnerArg {
		if err := sandbox.Run(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	common.LoadVersionFromFile()

	configPath := os.Getenv("TRANSFORMD_CONFIG")

	a, err := app.NewApp(context.Background(), configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	common.PrintBanner(a.Config, a.Logger)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.Logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("worker supervisor exited with error")
		os.Exit(1)
	}

	common.PrintShutdownBanner(a.Logger)
}
