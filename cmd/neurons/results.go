package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/resultstore"
)

// LatestRun selects the most recently stored run.
const LatestRun = "latest"

func newResultsCmd(a *app) *cobra.Command {
	var (
		runID     string
		category  string
		component string
		top       int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "results [run-dir]",
		Short: "Query the analysis results stored by visualize",
		Long: `results reads the results database. Without --run it lists stored runs.
With --run it prints the per-category signals, or the full ranking of one
category when --category is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.runDir(args)
			path := a.cfg.ResultsPath()
			if _, err := os.Stat(path); err != nil {
				return faults.Persistence("results", "open results database").With("path", path).Wrap(err)
			}
			store, err := resultstore.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			runs, err := store.Runs(ctx)
			if err != nil {
				return err
			}
			if runID == "" {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tCREATED\tCOMPONENTS\tCATEGORIES")
				for _, ri := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", ri.RunID, ri.Created.Format(time.RFC3339), ri.Components, strings.Join(ri.Categories, ","))
				}
				return tw.Flush()
			}
			if runID == LatestRun {
				if len(runs) == 0 {
					return faults.Persistence("results", "no runs stored").With("path", path).Wrap(resultstore.ErrNotFound)
				}
				runID = runs[0].RunID
			}

			if asJSON {
				rep, err := store.Report(ctx, runID)
				if err != nil {
					return faults.Persistence("results", "load report").With("run_id", runID).Wrap(err)
				}
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return faults.Persistence("results", "encode report").Wrap(err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			sigs, err := store.Signals(ctx, runID)
			if err != nil {
				return faults.Persistence("results", "load signals").With("run_id", runID).Wrap(err)
			}
			if category == "" {
				fmt.Fprintf(out, "Run %s\n", runID)
				printSignals(out, sigs)
				return nil
			}

			comp := component
			if comp == "" {
				for _, s := range sigs {
					if s.Category == category && s.Found {
						comp = s.Component
					}
				}
				if comp == "" {
					return faults.Configuration("results", "category %q has no distinctive signal in run %s; pass --component", category, runID)
				}
			}
			ns, err := store.TopNeurons(ctx, runID, category, comp)
			if err != nil {
				return err
			}
			if top > 0 && len(ns) > top {
				ns = ns[:top]
			}
			fmt.Fprintf(out, "%s / %s: %d ranked neurons\n", category, comp, len(ns))
			for i, n := range ns {
				fmt.Fprintf(out, "  %2d. neuron %d: %.4f\n", i+1, n.Index, n.Score)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&runID, "run", "", `run id to query, or "latest"`)
	f.StringVar(&category, "category", "", "print the full ranking of this category")
	f.StringVar(&component, "component", "", "component for --category (default: the category's signal component)")
	f.IntVar(&top, "top", 0, "limit the ranking to this many neurons")
	f.BoolVar(&asJSON, "json", false, "print the stored report as JSON")
	return cmd
}
