package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/masahif/packfetch/internal/cmd"
)

// Version information set by build flags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd.SetVersionInfo(Version, BuildTime)

	ctx, _ := interruptContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// interruptContext cancels ctx on the first signal and then restores the
// default handling, so a second signal kills the process. The returned
// channel is closed once the handler has been released.
func interruptContext(parent context.Context, sigs ...os.Signal) (context.Context, <-chan struct{}) {
	ctx, stop := signal.NotifyContext(parent, sigs...)
	released := make(chan struct{})
	go func() {
		<-ctx.Done()
		stop()
		close(released)
	}()
	return ctx, released
}
