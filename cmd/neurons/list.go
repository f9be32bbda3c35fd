package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/gguf"
)

func newListCmd(a *app) *cobra.Command {
	var (
		modelPath string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the components that can be captured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("model") {
				a.cfg.Model.Path = modelPath
			}
			m, _, name, err := loadModel(a.cfg)
			if err != nil {
				return err
			}
			sites := m.Describe()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sites)
			}

			if path := a.cfg.Model.Path; path != "" {
				f, err := gguf.LoadFile(path)
				if err != nil {
					return err
				}
				fmt.Fprint(out, f.Summarize().String())
				_ = f.Close()
			}
			fmt.Fprintf(out, "%d components for %s\n\n", len(sites), name)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMPONENT\tSHAPE\tDESCRIPTION")
			for _, s := range sites {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Shape, s.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "GGUF checkpoint (default: seeded reference model)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
