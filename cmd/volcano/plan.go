package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-volcano/volcano/engine"
	"github.com/wbrown/janus-volcano/volcano/planner"
)

func registerPlanCmd(rootCmd *cobra.Command) {
	planCmd := &cobra.Command{
		Use:   "plan [FILE|-]",
		Short: "print the cheapest plan for each tree in FILE",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dump, _ := cmd.Flags().GetBool("dump")
			return runPlan(cmd, args, dump)
		},
	}
	planCmd.Flags().Bool("dump", false, "print the planner registry after each search")

	rootCmd.AddCommand(planCmd)
}

func registerDumpCmd(rootCmd *cobra.Command) {
	dumpCmd := &cobra.Command{
		Use:   "dump [FILE|-]",
		Short: "print the planner registry after optimizing each tree in FILE",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args, true)
		},
	}

	rootCmd.AddCommand(dumpCmd)
}

func runPlan(cmd *cobra.Command, args []string, dump bool) error {
	trees, err := readTrees(cmd, args)
	if err != nil {
		return err
	}
	eng, closeStore, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	failed := 0
	for i, tree := range trees {
		if len(trees) > 1 {
			fmt.Fprintf(out, "=== Tree %d\n", i+1)
		}
		var r *engine.Result
		if dump {
			r, err = eng.OptimizeWithDump(cmd.Context(), tree)
		} else {
			r, err = eng.Optimize(cmd.Context(), tree)
		}
		if err != nil {
			failed++
			var cpe *planner.CannotPlanError
			if dump && errors.As(err, &cpe) {
				fmt.Fprintln(out, cpe.Dump)
			}
			fmt.Fprintf(out, "Error: %s\n", describeError(err))
			continue
		}
		if dump {
			fmt.Fprintln(out, r.Dump)
		}
		printResult(out, r)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d trees could not be planned", failed, len(trees))
	}
	return nil
}

func printResult(w io.Writer, r *engine.Result) {
	fmt.Fprintln(w, "Plan:")
	for _, line := range strings.Split(r.Explain, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintf(w, "Cost: %s after %s ticks, %s live sets, %s\n",
		r.Cost,
		humanize.Comma(int64(r.Stats.Ticks)),
		humanize.Comma(int64(r.Stats.LiveSets)),
		formatDuration(r.Duration))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	return d.Round(10 * time.Microsecond).String()
}
