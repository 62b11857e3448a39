package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-volcano/volcano/planstore"
)

func registerHistoryCmd(rootCmd *cobra.Command) {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "list optimization results recorded in a plan store",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().Int("limit", 20, "number of records to show (0 = all)")
	historyCmd.Flags().Bool("plans", false, "print the full plan of every record")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	storeDir, _ := cmd.Flags().GetString("store")
	limit, _ := cmd.Flags().GetInt("limit")
	showPlans, _ := cmd.Flags().GetBool("plans")
	if storeDir == "" {
		return fmt.Errorf("history needs --store")
	}

	store, err := planstore.Open(storeDir)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No plans recorded.")
		return nil
	}

	if showPlans {
		for _, r := range records {
			fmt.Fprintf(out, "=== %s %s (%s)\n%s\n", r.Fingerprint, r.Cost, humanize.Time(r.CreatedAt), r.Explain)
		}
		return nil
	}

	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"fingerprint", "root", "cost", "ticks", "recorded"})
	for _, r := range records {
		table.Append([]string{
			r.Fingerprint,
			headline(r.Explain),
			r.Cost,
			humanize.Comma(int64(r.Ticks)),
			humanize.Time(r.CreatedAt),
		})
	}
	table.Render()
	return nil
}

// headline is the root line of an explained plan
func headline(explain string) string {
	if i := strings.IndexByte(explain, '\n'); i >= 0 {
		return explain[:i]
	}
	return explain
}
