package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/metrics"
	"github.com/23skdu/longbow-neurons/internal/normalize"
	"github.com/23skdu/longbow-neurons/internal/run"
)

type Options struct {
	Components   []string // empty = KeyComponents, falling back to all
	TopK         int
	HeatmapWidth int
	Parallelism  int
}

func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, HeatmapWidth: 50, Parallelism: 4}
}

// ComponentReport is the numeric analysis of one component.
type ComponentReport struct {
	Component       string              `json:"component"`
	Samples         int                 `json:"samples"`
	Kept            int                 `json:"kept"`
	Discarded       int                 `json:"discarded"`
	Width           int                 `json:"width"`
	Importance      map[string][]Neuron `json:"importance"`
	Projection      []Point             `json:"projection,omitempty"`
	Variance        [2]float64          `json:"explained_variance"`
	ProjectionError string              `json:"projection_error,omitempty"`
	Heatmap         Heatmap             `json:"heatmap"`
}

// Report is the full analysis of a capture run.
type Report struct {
	RunID      string            `json:"run_id"`
	Created    time.Time         `json:"created"`
	Categories []string          `json:"categories"`
	Components []ComponentReport `json:"components"`
	Summary    []Signal          `json:"summary"`
}

// AnalyzeRun analyses each selected component in parallel and summarises
// the strongest signal per category.
func AnalyzeRun(ctx context.Context, r *run.Run, opts Options) (*Report, error) {
	comps := opts.Components
	if len(comps) == 0 {
		comps = KeyComponents(r.Components)
	}
	if len(comps) == 0 {
		comps = r.Components
	}
	known := make(map[string]bool, len(r.Components))
	for _, c := range r.Components {
		known[c] = true
	}
	for _, c := range comps {
		if !known[c] {
			return nil, faults.Configuration("analyze", "component %q not in run", c).With("run", r.ID)
		}
	}

	categories := r.Categories()
	reports := make([]ComponentReport, len(comps))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, c := range comps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = AnalyzeComponent(c, r.Samples[c], categories, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	per := make(map[string][]ComponentImportance, len(categories))
	for _, cr := range reports {
		for _, cat := range categories {
			per[cat] = append(per[cat], ComponentImportance{Component: cr.Component, Neurons: cr.Importance[cat]})
		}
	}

	return &Report{
		RunID:      r.ID,
		Created:    time.Now().UTC(),
		Categories: categories,
		Components: reports,
		Summary:    Summarize(categories, per),
	}, nil
}

// AnalyzeComponent normalizes one component's samples and computes its
// rankings, projection and heatmap.
func AnalyzeComponent(component string, samples []run.Sample, categories []string, opts Options) ComponentReport {
	start := time.Now()
	defer func() { metrics.RecordAnalysis(component, time.Since(start)) }()
	log := logger.Log.With("component", component)

	m, discarded := normalize.Many(samples)
	cr := ComponentReport{
		Component:  component,
		Samples:    len(samples),
		Kept:       m.Len(),
		Discarded:  discarded,
		Width:      m.Width(),
		Importance: make(map[string][]Neuron, len(categories)),
	}
	if discarded > 0 {
		metrics.RecordDiscards(component, discarded)
		log.Warn("Discarded samples with minority shape",
			"error", faults.ShapeMismatch("normalize", "%d of %d samples discarded", discarded, len(samples)),
			"kept", m.Len())
	}
	if m.Len() == 0 {
		return cr
	}

	for _, cat := range categories {
		cr.Importance[cat] = Importance(m.Rows, m.Labels, cat, opts.TopK)
	}

	if p, err := Project(m.Rows); err != nil {
		cr.ProjectionError = err.Error()
		log.Debug("Projection skipped", "error", err)
	} else {
		cr.Projection = p.Points(m.IDs, m.Labels)
		cr.Variance = p.Variance
	}

	cr.Heatmap = CategoryHeatmap(m.Rows, m.Labels, categories, opts.HeatmapWidth)
	return cr
}
