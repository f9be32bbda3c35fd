package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/runstore"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [run-dir]",
		Short: "Report per-component sample counts and shapes of a saved run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.runDir(args)
			m, err := runstore.ReadManifest(dir)
			if err != nil {
				return err
			}
			infos, err := runstore.Inspect(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if m.RunID != "" {
				fmt.Fprintf(out, "Run %s (%s), %d examples, %d skipped\n\n", m.RunID, m.Model, m.Examples, len(m.Skipped))
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMPONENT\tSAMPLES\tSHAPE\tELEMENTS\tSIZE_MB")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%v\t%d\t%.3f\n", info.Component, info.Samples, info.FirstShape, info.Elements, info.SizeMB)
			}
			return tw.Flush()
		},
	}
}
