package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/analysis"
	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/normalize"
	"github.com/23skdu/longbow-neurons/internal/runstore"
)

func newViewCmd(a *app) *cobra.Command {
	var (
		component string
		samples   int
		top       int
	)
	cmd := &cobra.Command{
		Use:   "view [run-dir]",
		Short: "Print activation statistics for one component",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.runDir(args)
			m, err := runstore.ReadManifest(dir)
			if err != nil {
				return err
			}
			if component == "" {
				if keys := analysis.KeyComponents(m.Components); len(keys) > 0 {
					component = keys[0]
				} else if len(m.Components) > 0 {
					component = m.Components[0]
				} else {
					return faults.Configuration("view", "run %s has no components", dir)
				}
			}
			ss, err := runstore.LoadComponent(dir, component)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d samples\n", component, len(ss))
			for i := 0; i < len(ss) && i < samples; i++ {
				st := analysis.Stats(ss[i].Tensor)
				fmt.Fprintf(out, "  [%s] %-10s shape=%v min=%.4f max=%.4f mean=%.4f std=%.4f zeros=%d nan=%d inf=%d\n",
					ss[i].ExampleID, ss[i].Label, st.Shape, st.Min, st.Max, st.Mean, st.Std, st.Zeros, st.NaN, st.Inf)
			}

			mat, discarded := normalize.Many(ss)
			if mat.Len() == 0 {
				return nil
			}
			fmt.Fprintf(out, "Top %d neurons by mean activation (%d rows, %d discarded):\n", top, mat.Len(), discarded)
			for _, n := range analysis.TopByMean(mat.Rows, top) {
				fmt.Fprintf(out, "  neuron %d: %.4f\n", n.Index, n.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&component, "component", "", "component to view (default: first key component)")
	cmd.Flags().IntVar(&samples, "samples", 5, "samples to describe")
	cmd.Flags().IntVar(&top, "top", 10, "neurons to rank by mean")
	return cmd
}
