// gen_gguf writes a seeded reference checkpoint for local capture runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/model"
)

func main() {
	cfg := model.Default()
	var (
		out  string
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "gen_gguf",
		Short: "Write a randomly initialised gpt2 checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := model.New(cfg, seed)
			if err != nil {
				return err
			}
			if err := m.Save(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d layers, dim %d, ctx %d)\n", out, cfg.Layers, cfg.Dim, cfg.ContextWindow)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&out, "output", "o", "reference.gguf", "checkpoint path")
	f.Int64Var(&seed, "seed", 42, "initialisation seed")
	f.StringVar(&cfg.Name, "name", cfg.Name, "general.name")
	f.IntVar(&cfg.Layers, "layers", cfg.Layers, "transformer blocks")
	f.IntVar(&cfg.Dim, "dim", cfg.Dim, "embedding width")
	f.IntVar(&cfg.Heads, "heads", cfg.Heads, "attention heads")
	f.IntVar(&cfg.HiddenDim, "hidden", cfg.HiddenDim, "MLP width")
	f.IntVar(&cfg.ContextWindow, "ctx", cfg.ContextWindow, "context window")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
