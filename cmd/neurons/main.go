// Command neurons captures per-component activations from an instrumented
// language model and analyses which neurons separate labelled categories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/config"
	"github.com/23skdu/longbow-neurons/internal/logger"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string
	cfg       *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "neurons",
		Short: "Neuron activation capture and analysis",
		Long: `neurons runs labelled text through an instrumented model, records the
activations of selected components and ranks the neurons that best separate
each category.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(
		newCaptureCmd(a),
		newListCmd(a),
		newAnalyzeCmd(a),
		newVisualizeCmd(a),
		newResultsCmd(a),
		newViewCmd(a),
		newPublishCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	a.cfg = cfg
	return nil
}

// runDir resolves the run directory from an optional positional argument.
func (a *app) runDir(args []string) string {
	if len(args) > 0 {
		a.cfg.Output.Dir = args[0]
	}
	return a.cfg.Output.Dir
}
