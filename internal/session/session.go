// Package session turns a list of labelled examples into a capture run,
// one instrumented inference per example.
package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/23skdu/longbow-neurons/internal/capture"
	"github.com/23skdu/longbow-neurons/internal/config"
	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/metrics"
	"github.com/23skdu/longbow-neurons/internal/model"
	"github.com/23skdu/longbow-neurons/internal/run"
	"github.com/23skdu/longbow-neurons/internal/tensor"
	"github.com/23skdu/longbow-neurons/internal/tokenizer"
)

// Model is an instrumentable next-token model.
type Model interface {
	capture.Target
	Forward(ctx context.Context, tokens []int) (*tensor.Tensor, error)
	ContextWindow() int
}

// Progress receives per-example progress, e.g. the health monitor.
type Progress interface {
	StartRun(id string, total int)
	RecordExample(skipped bool)
	FinishRun(err error)
}

type Options struct {
	ModelName      string
	Temperature    float64
	Seed           int64
	FailurePolicy  config.FailurePolicy
	ProgressEvery  int
	GenerateTokens int // diagnostic continuation length; 0 disables sampling
	Progress       Progress
}

func DefaultOptions() Options {
	return Options{
		Temperature:    0.8,
		Seed:           42,
		FailurePolicy:  config.FailAbort,
		ProgressEvery:  20,
		GenerateTokens: 1,
	}
}

type Session struct {
	model   Model
	tok     tokenizer.Tokenizer
	opts    Options
	sampler *model.Sampler
	log     *logger.Logger
}

func New(m Model, tok tokenizer.Tokenizer, opts Options) *Session {
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.FailAbort
	}
	return &Session{
		model:   m,
		tok:     tok,
		opts:    opts,
		sampler: model.NewSampler(opts.Temperature, opts.Seed),
		log:     logger.Log.With("module", "session"),
	}
}

// Run captures every component for every example, in order. Observation
// points are always detached before Run returns.
func (s *Session) Run(ctx context.Context, examples []run.Example, components []string) (result *run.Run, err error) {
	mgr := capture.New(s.model)
	defer func() {
		if terr := mgr.Teardown(); terr != nil && err == nil {
			err = terr
		}
	}()

	for _, c := range components {
		if err := mgr.Register(c); err != nil {
			return nil, err
		}
	}
	if err := mgr.Seal(); err != nil {
		return nil, err
	}

	r := run.New(s.opts.ModelName, components)
	log := s.log.With("run", r.ID)
	if p := s.opts.Progress; p != nil {
		p.StartRun(r.ID, len(examples))
		defer func() { p.FinishRun(err) }()
	}

	log.Info("Starting capture", "examples", len(examples), "components", len(components), "policy", string(s.opts.FailurePolicy))

	for i, ex := range examples {
		if ex.ID == "" {
			ex.ID = strconv.Itoa(i)
		}
		if err := ctx.Err(); err != nil {
			return nil, faults.Inference("run", "cancelled at example %d", i).Wrap(err)
		}

		cerr := s.captureOne(ctx, mgr, r, ex)
		skipped := false
		if cerr != nil {
			canSkip := s.opts.FailurePolicy == config.FailSkip &&
				errors.Is(cerr, faults.ErrInference) &&
				ctx.Err() == nil
			metrics.RecordInferenceError(canSkip)
			if !canSkip {
				log.Error("Capture failed", "index", i, "example", ex.ID, "error", cerr)
				return nil, cerr
			}
			log.Warn("Skipping example", "index", i, "example", ex.ID, "error", cerr)
			r.Skipped = append(r.Skipped, run.Skip{Index: i, ExampleID: ex.ID, Reason: cerr.Error()})
			skipped = true
		}
		if p := s.opts.Progress; p != nil {
			p.RecordExample(skipped)
		}

		if n := s.opts.ProgressEvery; n > 0 && (i+1)%n == 0 {
			log.Info("Processed examples", "done", i+1, "total", len(examples), "skipped", len(r.Skipped))
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	log.Info("Capture complete", "examples", r.Metadata.Len(), "skipped", len(r.Skipped))
	return r, nil
}

func (s *Session) captureOne(ctx context.Context, mgr *capture.Manager, r *run.Run, ex run.Example) error {
	tokens := s.tok.Encode(ex.Text)
	if len(tokens) == 0 {
		return faults.Inference("tokenize", "example %s produced no tokens", ex.ID)
	}
	ex.TokenLength = len(tokens)
	if window := s.model.ContextWindow(); len(tokens) > window {
		tokens = tokens[len(tokens)-window:]
		metrics.RecordTruncation()
	}

	if err := mgr.Enable(); err != nil {
		return err
	}
	start := time.Now()
	logits, ferr := s.model.Forward(ctx, tokens)
	if err := mgr.Disable(); err != nil {
		return err
	}
	cycle, err := mgr.Collect()
	if err != nil {
		return err
	}
	if ferr != nil {
		return faults.Inference("forward", "example %s", ex.ID).Wrap(ferr)
	}
	metrics.RecordCycle(time.Since(start), len(tokens))

	ex.Generated = s.generate(ctx, tokens, logits)

	for _, c := range cycle.Components() {
		t, _ := cycle.Get(c)
		if nans, infs := t.CountNaNInf(); nans+infs > 0 {
			metrics.RecordNumericalInstability(c, nans, infs)
		}
		r.Append(c, run.Sample{Tensor: t, Label: ex.Label, ExampleID: ex.ID})
		metrics.RecordSample(c)
	}
	r.Metadata.Append(ex)
	return nil
}

// generate samples a short diagnostic continuation. Extra forward passes
// run with capture disabled, so they record nothing.
func (s *Session) generate(ctx context.Context, tokens []int, logits *tensor.Tensor) string {
	n := s.opts.GenerateTokens
	if n <= 0 || s.opts.Temperature <= 0 || logits == nil {
		return ""
	}
	window := s.model.ContextWindow()
	ctxTokens := append([]int(nil), tokens...)
	var out []int
	for g := 0; g < n; g++ {
		next := s.sampler.Sample(lastRow(logits))
		out = append(out, next)
		if g+1 == n {
			break
		}
		ctxTokens = append(ctxTokens, next)
		if len(ctxTokens) > window {
			ctxTokens = ctxTokens[len(ctxTokens)-window:]
		}
		var err error
		if logits, err = s.model.Forward(ctx, ctxTokens); err != nil {
			s.log.Debug("Diagnostic generation stopped", "error", err)
			break
		}
	}
	return s.tok.Decode(out)
}

func lastRow(logits *tensor.Tensor) []float32 {
	v := logits.Shape[len(logits.Shape)-1]
	return logits.Data[len(logits.Data)-v:]
}
