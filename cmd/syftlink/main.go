package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd, cleanup := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		stop()
		os.Exit(1)
	}
}
