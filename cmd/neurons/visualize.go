package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/analysis"
	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/resultstore"
	"github.com/23skdu/longbow-neurons/internal/runstore"
)

// ReportFile is written into the run directory by visualize.
const ReportFile = "analysis.json"

func (a *app) analysisOptions(components []string) analysis.Options {
	opts := analysis.Options{
		Components:   a.cfg.Analysis.KeyComponents,
		TopK:         a.cfg.Analysis.TopK,
		HeatmapWidth: a.cfg.Analysis.HeatmapWidth,
		Parallelism:  a.cfg.Analysis.Parallelism,
	}
	if len(components) > 0 {
		opts.Components = components
	}
	return opts
}

func newVisualizeCmd(a *app) *cobra.Command {
	var (
		components []string
		noDB       bool
	)
	cmd := &cobra.Command{
		Use:   "visualize [run-dir]",
		Short: "Rank neurons per category and write the analysis report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.runDir(args)
			r, err := runstore.Load(dir)
			if err != nil {
				return err
			}
			rep, err := analysis.AnalyzeRun(cmd.Context(), r, a.analysisOptions(components))
			if err != nil {
				return err
			}

			path := filepath.Join(dir, ReportFile)
			data, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return faults.Persistence("visualize", "encode report").Wrap(err)
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				return faults.Persistence("visualize", "write report").With("path", path).Wrap(err)
			}
			logger.Log.Info("Report written", "path", path)

			if !noDB {
				store, err := resultstore.Open(a.cfg.ResultsPath())
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if err := store.SaveReport(cmd.Context(), rep); err != nil {
					return err
				}
			}

			printSummary(cmd, rep)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&components, "components", nil, "components to analyse (default: key components)")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "skip the results database")
	return cmd
}

func printSummary(cmd *cobra.Command, rep *analysis.Report) {
	out := cmd.OutOrStdout()
	for _, cr := range rep.Components {
		fmt.Fprintf(out, "%s: %d/%d samples, width %d", cr.Component, cr.Kept, cr.Samples, cr.Width)
		if cr.Discarded > 0 {
			fmt.Fprintf(out, ", %d discarded", cr.Discarded)
		}
		if cr.ProjectionError == "" {
			fmt.Fprintf(out, ", PC variance %.4f/%.4f", cr.Variance[0], cr.Variance[1])
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out)

	printSignals(out, rep.Summary)
}

// printSignals writes one row per category. Categories without a positive
// score are reported as having no distinctive signal.
func printSignals(w io.Writer, sigs []analysis.Signal) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tCOMPONENT\tNEURON\tSCORE\tTOP")
	for _, s := range sigs {
		if !s.Found {
			fmt.Fprintf(tw, "%s\tno distinctive signal\t\t\t\n", s.Category)
			continue
		}
		top := make([]int, len(s.Top))
		for i, n := range s.Top {
			top[i] = n.Index
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%v\n", s.Category, s.Component, s.Neuron, s.Score, top)
	}
	_ = tw.Flush()
}
