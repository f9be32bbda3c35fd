package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/analysis"
	"github.com/23skdu/longbow-neurons/internal/flightexport"
	"github.com/23skdu/longbow-neurons/internal/metrics"
	"github.com/23skdu/longbow-neurons/internal/normalize"
	"github.com/23skdu/longbow-neurons/internal/runstore"
)

var newExporter = func(addr, table string) flightexport.Exporter {
	return flightexport.NewFlightExporter(addr, table)
}

func newPublishCmd(a *app) *cobra.Command {
	var (
		addr       string
		table      string
		components []string
	)
	cmd := &cobra.Command{
		Use:   "publish [run-dir]",
		Short: "Send normalized feature matrices to a Longbow vector store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Output.FlightAddr = addr
			}
			if cmd.Flags().Changed("table") {
				a.cfg.Output.FlightTable = table
			}
			dir := a.runDir(args)
			m, err := runstore.ReadManifest(dir)
			if err != nil {
				return err
			}
			comps := components
			if len(comps) == 0 {
				comps = analysis.KeyComponents(m.Components)
			}
			if len(comps) == 0 {
				comps = m.Components
			}

			ctx := cmd.Context()
			exp := newExporter(a.cfg.Output.FlightAddr, a.cfg.Output.FlightTable)
			if err := exp.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = exp.Close() }()

			out := cmd.OutOrStdout()
			for _, c := range comps {
				ss, err := runstore.LoadComponent(dir, c)
				if err != nil {
					return err
				}
				mat, discarded := normalize.Many(ss)
				metrics.RecordDiscards(c, discarded)
				if mat.Len() == 0 {
					fmt.Fprintf(out, "%s: nothing to publish\n", c)
					continue
				}
				if err := exp.Put(ctx, flightexport.FromMatrix(m.RunID, c, mat)); err != nil {
					return fmt.Errorf("publish %s: %w", c, err)
				}
				fmt.Fprintf(out, "%s: published %d rows of width %d\n", c, mat.Len(), mat.Width())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Flight address (default from config, then "+flightexport.DefaultAddr+")")
	cmd.Flags().StringVar(&table, "table", "", "target table")
	cmd.Flags().StringSliceVar(&components, "components", nil, "components to publish (default: key components)")
	return cmd
}
