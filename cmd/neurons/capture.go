package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-neurons/internal/config"
	"github.com/23skdu/longbow-neurons/internal/dataset"
	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/model"
	"github.com/23skdu/longbow-neurons/internal/monitoring"
	"github.com/23skdu/longbow-neurons/internal/runstore"
	"github.com/23skdu/longbow-neurons/internal/session"
	"github.com/23skdu/longbow-neurons/internal/tokenizer"
)

func newCaptureCmd(a *app) *cobra.Command {
	var (
		modelPath   string
		dataPath    string
		outDir      string
		components  []string
		maxExamples int
		policy      string
		generate    int
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run a dataset through the model and save activations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			c := a.cfg
			if f.Changed("model") {
				c.Model.Path = modelPath
			}
			if f.Changed("dataset") {
				c.Dataset.Path = dataPath
			}
			if f.Changed("output") {
				c.Output.Dir = outDir
			}
			if f.Changed("components") {
				c.Capture.Components = components
			}
			if f.Changed("max-examples") {
				c.Dataset.MaxExamples = maxExamples
			}
			if f.Changed("policy") {
				c.Capture.FailurePolicy = config.FailurePolicy(policy)
			}
			if f.Changed("metrics-addr") {
				c.Capture.MetricsAddr = metricsAddr
			}
			if err := c.Validate(); err != nil {
				return err
			}
			return runCapture(cmd.Context(), c, generate, cmd)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&modelPath, "model", "m", "", "GGUF checkpoint (default: seeded reference model)")
	f.StringVarP(&dataPath, "dataset", "d", "", "JSON dataset of {text, label} records")
	f.StringVarP(&outDir, "output", "o", "", "run output directory")
	f.StringSliceVar(&components, "components", nil, "components to capture (default: all)")
	f.IntVar(&maxExamples, "max-examples", 0, "cap on examples processed")
	f.StringVar(&policy, "policy", "", "failure policy: abort or skip")
	f.IntVar(&generate, "generate", 1, "diagnostic tokens to sample per example")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
	return cmd
}

// loadModel opens the configured checkpoint, or builds the seeded reference
// model when none is configured.
func loadModel(c *config.Config) (*model.Model, tokenizer.Tokenizer, string, error) {
	var (
		m   *model.Model
		err error
	)
	if c.Model.Path != "" {
		dir, derr := model.StoreDir()
		if derr != nil {
			return nil, nil, "", derr
		}
		path, rerr := model.ResolvePath(c.Model.Path, dir)
		if rerr != nil {
			return nil, nil, "", rerr
		}
		c.Model.Path = path
		m, err = model.Load(path)
	} else {
		m, err = model.New(model.Default(), c.Model.Seed)
	}
	if err != nil {
		return nil, nil, "", err
	}
	name := m.Config().Name
	if name == "" {
		name = "reference"
	}
	return m, tokenizer.ForVocab(m.Vocab), name, nil
}

func runCapture(ctx context.Context, c *config.Config, generate int, cmd *cobra.Command) error {
	if c.Dataset.Path == "" {
		return faults.Configuration("capture", "a dataset path is required")
	}
	m, tok, name, err := loadModel(c)
	if err != nil {
		return err
	}
	logger.Log.Info("Model ready", "model", name, "layers", m.Config().Layers, "dim", m.Config().Dim)

	exs, err := dataset.LoadExamples(c.Dataset.Path, dataset.Options{
		Categories:         c.Dataset.Categories,
		SamplesPerCategory: c.Dataset.SamplesPerCategory,
		MaxExamples:        c.Dataset.MaxExamples,
		Seed:               c.Dataset.Seed,
	})
	if err != nil {
		return err
	}
	if len(exs) == 0 {
		return faults.Configuration("capture", "dataset %s has no examples for %s", c.Dataset.Path, strings.Join(c.Dataset.Categories, ","))
	}

	comps := c.Capture.Components
	if len(comps) == 0 {
		comps = m.Sites()
	}

	opts := session.Options{
		ModelName:      name,
		Temperature:    c.Capture.Temperature,
		Seed:           c.Capture.Seed,
		FailurePolicy:  c.Capture.FailurePolicy,
		ProgressEvery:  c.Capture.ProgressEvery,
		GenerateTokens: generate,
	}
	if addr := c.Capture.MetricsAddr; addr != "" {
		hm := monitoring.NewHealthMonitor()
		if _, err := hm.Listen(addr); err != nil {
			return faults.Configuration("capture", "serve metrics").With("addr", addr).Wrap(err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hm.Stop(sctx)
		}()
		opts.Progress = hm
	}

	r, err := session.New(m, tok, opts).Run(ctx, exs, comps)
	if err != nil {
		return err
	}
	if err := runstore.Save(c.Output.Dir, r); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d examples, %d components, %d skipped\n", r.ID, r.Metadata.Len(), len(r.Components), len(r.Skipped))
	fmt.Fprintf(out, "Saved to %s\n", c.Output.Dir)
	return nil
}
