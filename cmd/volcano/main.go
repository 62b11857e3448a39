package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	rootCmd := newRootCmd()

	registerPlanCmd(rootCmd)
	registerDumpCmd(rootCmd)
	registerBatchCmd(rootCmd)
	registerHistoryCmd(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
