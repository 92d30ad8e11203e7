package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kagami/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.RootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		stop()
		os.Exit(1)
	}
}
