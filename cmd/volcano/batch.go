package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-volcano/volcano/engine"
)

func registerBatchCmd(rootCmd *cobra.Command) {
	batchCmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "optimize every tree in the given files in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().Int("workers", 0, "number of parallel planners (0 = one per CPU)")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	trees, err := readTrees(cmd, args)
	if err != nil {
		return err
	}
	workers, _ := cmd.Flags().GetInt("workers")
	eng, closeStore, err := newEngine(cmd, func(c *engine.Config) { c.Workers = workers })
	if err != nil {
		return err
	}
	defer closeStore()

	start := time.Now()
	outcomes, err := eng.OptimizeBatch(cmd.Context(), trees)
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	failed := 0
	for i, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "#%d failed: %s\n", i+1, describeError(o.Err))
			continue
		}
		fmt.Fprintf(out, "#%d %s cost %s, %s ticks, %s\n",
			i+1,
			o.Result.Plan.Kind(),
			o.Result.Cost,
			humanize.Comma(int64(o.Result.Stats.Ticks)),
			formatDuration(o.Result.Duration))
	}
	fmt.Fprintf(out, "Optimized %s trees in %s, %s failed\n",
		humanize.Comma(int64(len(trees))),
		formatDuration(elapsed),
		humanize.Comma(int64(failed)))

	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d trees could not be planned", failed, len(trees))
	}
	return nil
}
