// Package model is a CPU reference GPT-2 style decoder with named
// observation sites. It exists to be instrumented, not to be fast.
package model

import (
	"context"
	"math"
	"math/rand"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/hooks"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

// Block holds one decoder block's parameters. Matrices are [out][in].
type Block struct {
	AttnNormW, AttnNormB []float32
	QKVW, QKVB           []float32 // [3D][D]
	AttnOutW, AttnOutB   []float32 // [D][D]
	FFNNormW, FFNNormB   []float32
	UpW, UpB             []float32 // [H][D]
	DownW, DownB         []float32 // [D][H]
}

type Weights struct {
	TokenEmbd []float32 // [V][D]
	PosEmbd   []float32 // [C][D]
	Blocks    []Block
	OutNormW  []float32
	OutNormB  []float32
	Output    []float32 // [V][D]; shares TokenEmbd when tied
}

type Model struct {
	*hooks.Registry

	cfg   Config
	w     Weights
	Vocab []string // optional token pieces carried in the checkpoint
}

// New builds a model with GPT-2 style random initialisation.
func New(cfg Config, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, faults.Configuration("model", "invalid config").Wrap(err)
	}
	rng := rand.New(rand.NewSource(seed))
	normal := func(n int, std float64) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(rng.NormFloat64() * std)
		}
		return out
	}
	ones := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = 1
		}
		return out
	}

	d, h := cfg.Dim, cfg.HiddenDim
	residStd := 0.02 / math.Sqrt(2*float64(cfg.Layers))
	w := Weights{
		TokenEmbd: normal(cfg.VocabSize*d, 0.02),
		PosEmbd:   normal(cfg.ContextWindow*d, 0.01),
		OutNormW:  ones(d),
		OutNormB:  make([]float32, d),
	}
	w.Output = w.TokenEmbd
	for i := 0; i < cfg.Layers; i++ {
		w.Blocks = append(w.Blocks, Block{
			AttnNormW: ones(d),
			AttnNormB: make([]float32, d),
			QKVW:      normal(3*d*d, 0.02),
			QKVB:      make([]float32, 3*d),
			AttnOutW:  normal(d*d, residStd),
			AttnOutB:  make([]float32, d),
			FFNNormW:  ones(d),
			FFNNormB:  make([]float32, d),
			UpW:       normal(h*d, 0.02),
			UpB:       make([]float32, h),
			DownW:     normal(d*h, residStd),
			DownB:     make([]float32, d),
		})
	}
	return newModel(cfg, w), nil
}

func newModel(cfg Config, w Weights) *Model {
	return &Model{
		Registry: hooks.NewRegistry(SiteNames(cfg.Layers)),
		cfg:      cfg,
		w:        w,
	}
}

func (m *Model) Config() Config {
	return m.cfg
}

func (m *Model) ContextWindow() int {
	return m.cfg.ContextWindow
}

func (m *Model) VocabSize() int {
	return m.cfg.VocabSize
}

// emit fires hooks for site on a private copy so observers cannot
// perturb the forward computation.
func (m *Model) emit(site string, data []float32, shape []int, extra ...*tensor.Tensor) {
	if !m.Active(site) {
		return
	}
	primary := &tensor.Tensor{Shape: shape, Data: append([]float32(nil), data...)}
	m.Fire(site, hooks.Output{Primary: primary, Extra: extra})
}

// Forward runs one sequence (batch 1) and returns logits [1,T,V].
func (m *Model) Forward(ctx context.Context, tokens []int) (*tensor.Tensor, error) {
	c := m.cfg
	seq := len(tokens)
	if seq == 0 {
		return nil, faults.Inference("forward", "empty input")
	}
	if seq > c.ContextWindow {
		return nil, faults.Inference("forward", "sequence of %d tokens exceeds context window %d", seq, c.ContextWindow)
	}
	for i, tok := range tokens {
		if tok < 0 || tok >= c.VocabSize {
			return nil, faults.Inference("forward", "token %d at position %d out of range [0,%d)", tok, i, c.VocabSize)
		}
	}

	d := c.Dim
	x := make([]float32, seq*d)
	for t, tok := range tokens {
		xr := x[t*d : (t+1)*d]
		copy(xr, m.w.TokenEmbd[tok*d:(tok+1)*d])
		addInPlace(xr, m.w.PosEmbd[t*d:(t+1)*d])
	}
	m.emit(SiteInputEmbeds, x, []int{1, seq, d})

	for i := range m.w.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, faults.Inference("forward", "cancelled before block %d", i).Wrap(err)
		}
		x = m.block(i, x, seq)
	}

	xf := layerNorm(x, seq, d, m.w.OutNormW, m.w.OutNormB, c.Eps)
	m.emit(SiteFinalLayer, xf, []int{1, seq, d})

	logits := linear(xf, seq, d, m.w.Output, nil, c.VocabSize)
	m.emit(SiteLogits, logits, []int{1, seq, c.VocabSize})

	nanCount, infCount := 0, 0
	for _, v := range logits {
		if math.IsNaN(float64(v)) {
			nanCount++
		} else if math.IsInf(float64(v), 0) {
			infCount++
		}
	}
	if nanCount+infCount > 0 {
		return nil, faults.Inference("forward", "logits contain %d NaN and %d Inf values", nanCount, infCount)
	}

	return &tensor.Tensor{Shape: []int{1, seq, c.VocabSize}, Data: logits}, nil
}

func (m *Model) block(i int, x []float32, seq int) []float32 {
	c := m.cfg
	b := &m.w.Blocks[i]
	d, hd, heads := c.Dim, c.HeadDim(), c.Heads

	h1 := layerNorm(x, seq, d, b.AttnNormW, b.AttnNormB, c.Eps)
	m.emit(BlockSite(i, SuffixLN1), h1, []int{1, seq, d})

	qkv := linear(h1, seq, d, b.QKVW, b.QKVB, 3*d)
	m.emit(BlockSite(i, SuffixAttnProj), qkv, []int{1, seq, 3 * d})

	weights := make([]float32, heads*seq*seq)
	ctxv := make([]float32, seq*d)
	scale := float32(1 / math.Sqrt(float64(hd)))
	for h := 0; h < heads; h++ {
		for t := 0; t < seq; t++ {
			q := qkv[t*3*d+h*hd : t*3*d+(h+1)*hd]
			row := weights[(h*seq+t)*seq : (h*seq+t+1)*seq]
			for s := 0; s <= t; s++ {
				k := qkv[s*3*d+d+h*hd : s*3*d+d+(h+1)*hd]
				var dot float32
				for j := range q {
					dot += q[j] * k[j]
				}
				row[s] = dot * scale
			}
			softmaxInPlace(row[:t+1])
			out := ctxv[t*d+h*hd : t*d+(h+1)*hd]
			for s := 0; s <= t; s++ {
				v := qkv[s*3*d+2*d+h*hd : s*3*d+2*d+(h+1)*hd]
				p := row[s]
				for j := range out {
					out[j] += p * v[j]
				}
			}
		}
	}
	attn := linear(ctxv, seq, d, b.AttnOutW, b.AttnOutB, d)
	if m.Active(BlockSite(i, SuffixAttn)) {
		w := &tensor.Tensor{Shape: []int{1, heads, seq, seq}, Data: weights}
		m.emit(BlockSite(i, SuffixAttn), attn, []int{1, seq, d}, w)
	}

	x = append([]float32(nil), x...)
	addInPlace(x, attn)

	h2 := layerNorm(x, seq, d, b.FFNNormW, b.FFNNormB, c.Eps)
	m.emit(BlockSite(i, SuffixLN2), h2, []int{1, seq, d})

	fc := linear(h2, seq, d, b.UpW, b.UpB, c.HiddenDim)
	m.emit(BlockSite(i, SuffixMLPFC), fc, []int{1, seq, c.HiddenDim})

	mlp := linear(gelu(fc), seq, c.HiddenDim, b.DownW, b.DownB, d)
	m.emit(BlockSite(i, SuffixMLP), mlp, []int{1, seq, d})

	addInPlace(x, mlp)
	m.emit(BlockSite(i, SuffixOutput), x, []int{1, seq, d})
	return x
}
