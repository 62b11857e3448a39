package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-volcano/volcano/algebra"
	"github.com/wbrown/janus-volcano/volcano/annotations"
	"github.com/wbrown/janus-volcano/volcano/engine"
	"github.com/wbrown/janus-volcano/volcano/logging"
	"github.com/wbrown/janus-volcano/volcano/planner"
	"github.com/wbrown/janus-volcano/volcano/planstore"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "volcano",
		Short: "A cost-based query optimizer",
		Long: `Optimize relational operator trees written as s-expressions, e.g.

  (join (scan emp :rows 1000 :index [1])
        (scan dept :rows 10)
        :on deptno :keys [1 0])`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			logging.SetGlobalLogger(logging.NewConsoleLogger(cmd.ErrOrStderr(), level))
			return nil
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "warn", `log level ("trace", "debug", "info", "warn", "error")`)
	flags.Bool("verbose", false, "print planner events as they happen")
	flags.StringSlice("rules", nil, fmt.Sprintf("rules to install (default all of %s)", strings.Join(algebra.RuleNames(), ", ")))
	flags.Int("max-ticks", 0, "abort the search after this many ticks (0 = no limit)")
	flags.Bool("impatient", false, "stop shortly after the first complete plan")
	flags.Bool("provenance", false, "record which rule produced each expression (shown in dumps)")
	flags.String("store", "", "directory of a plan store to record results in")

	return rootCmd
}

// newEngine builds an engine from the persistent flags, then applies
// configure. The returned close function releases the plan store, if
// one was opened.
func newEngine(cmd *cobra.Command, configure ...func(*engine.Config)) (*engine.Engine, func() error, error) {
	flags := cmd.Flags()
	ruleNames, _ := flags.GetStringSlice("rules")
	maxTicks, _ := flags.GetInt("max-ticks")
	impatient, _ := flags.GetBool("impatient")
	provenance, _ := flags.GetBool("provenance")
	verbose, _ := flags.GetBool("verbose")
	storeDir, _ := flags.GetString("store")

	rules, err := algebra.Rules(ruleNames...)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := engine.AlgebraConfig(rules...)
	if err != nil {
		return nil, nil, err
	}
	cfg.Options.MaxTicks = maxTicks
	cfg.Options.Impatient = impatient
	cfg.Options.TrackProvenance = provenance
	if verbose {
		cfg.Handler = annotations.NewOutputFormatter(cmd.ErrOrStderr()).Handle
	}

	for _, fn := range configure {
		fn(&cfg)
	}

	closeFn := func() error { return nil }
	if storeDir != "" {
		store, err := planstore.Open(storeDir)
		if err != nil {
			return nil, nil, err
		}
		cfg.Store = store
		closeFn = store.Close
	}

	eng, err := engine.New(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return eng, closeFn, nil
}

// readTrees parses every tree in the named files. No files, or "-",
// means standard input.
func readTrees(cmd *cobra.Command, paths []string) ([]*planner.Expr, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	var trees []*planner.Expr
	for _, path := range paths {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		parsed, err := algebra.ParseTrees(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		trees = append(trees, parsed...)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("no operator trees given")
	}
	return trees, nil
}

// describeError shortens errors for terminal output. A cannot-plan
// error carries the whole registry dump, which --dump prints instead.
func describeError(err error) string {
	var cpe *planner.CannotPlanError
	if errors.As(err, &cpe) {
		return fmt.Sprintf("no implementable plan for %s", cpe.Subset)
	}
	return err.Error()
}
