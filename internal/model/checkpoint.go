package model

import (
	"fmt"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/gguf"
	"github.com/23skdu/longbow-neurons/internal/logger"
)

const arch = "gpt2"

func blk(i int, name string) string {
	return fmt.Sprintf("blk.%d.%s", i, name)
}

// Save writes the model as a GGUF checkpoint with F32 tensors.
func (m *Model) Save(path string) error {
	c := m.cfg
	w := gguf.NewWriter()
	w.SetKV("general.architecture", arch)
	w.SetKV("general.name", c.Name)
	w.SetKV(arch+".context_length", uint32(c.ContextWindow))
	w.SetKV(arch+".embedding_length", uint32(c.Dim))
	w.SetKV(arch+".feed_forward_length", uint32(c.HiddenDim))
	w.SetKV(arch+".block_count", uint32(c.Layers))
	w.SetKV(arch+".attention.head_count", uint32(c.Heads))
	w.SetKV(arch+".attention.layer_norm_epsilon", c.Eps)
	if len(m.Vocab) > 0 {
		w.SetKV("tokenizer.ggml.model", arch)
		w.SetKV("tokenizer.ggml.tokens", m.Vocab)
	}

	d, h, v := c.Dim, c.HiddenDim, c.VocabSize
	add := func(name string, shape []int, data []float32) error {
		if err := w.AddTensor(name, shape, data); err != nil {
			return faults.Persistence("save", "add tensor").With("path", path).Wrap(err)
		}
		return nil
	}
	type tensorEntry struct {
		name  string
		shape []int
		data  []float32
	}
	entries := []tensorEntry{
		{"token_embd.weight", []int{v, d}, m.w.TokenEmbd},
		{"position_embd.weight", []int{c.ContextWindow, d}, m.w.PosEmbd},
	}
	for i, b := range m.w.Blocks {
		entries = append(entries,
			tensorEntry{blk(i, "attn_norm.weight"), []int{d}, b.AttnNormW},
			tensorEntry{blk(i, "attn_norm.bias"), []int{d}, b.AttnNormB},
			tensorEntry{blk(i, "attn_qkv.weight"), []int{3 * d, d}, b.QKVW},
			tensorEntry{blk(i, "attn_qkv.bias"), []int{3 * d}, b.QKVB},
			tensorEntry{blk(i, "attn_output.weight"), []int{d, d}, b.AttnOutW},
			tensorEntry{blk(i, "attn_output.bias"), []int{d}, b.AttnOutB},
			tensorEntry{blk(i, "ffn_norm.weight"), []int{d}, b.FFNNormW},
			tensorEntry{blk(i, "ffn_norm.bias"), []int{d}, b.FFNNormB},
			tensorEntry{blk(i, "ffn_up.weight"), []int{h, d}, b.UpW},
			tensorEntry{blk(i, "ffn_up.bias"), []int{h}, b.UpB},
			tensorEntry{blk(i, "ffn_down.weight"), []int{d, h}, b.DownW},
			tensorEntry{blk(i, "ffn_down.bias"), []int{d}, b.DownB},
		)
	}
	entries = append(entries,
		tensorEntry{"output_norm.weight", []int{d}, m.w.OutNormW},
		tensorEntry{"output_norm.bias", []int{d}, m.w.OutNormB},
	)
	if &m.w.Output[0] != &m.w.TokenEmbd[0] {
		entries = append(entries, tensorEntry{"output.weight", []int{v, d}, m.w.Output})
	}
	for _, s := range entries {
		if err := add(s.name, s.shape, s.data); err != nil {
			return err
		}
	}
	if err := w.WriteFile(path); err != nil {
		return faults.Persistence("save", "write checkpoint").With("path", path).Wrap(err)
	}
	return nil
}

// Load reads a gpt2 GGUF checkpoint (F32 or F16 tensors).
func Load(path string) (*Model, error) {
	f, err := gguf.LoadFile(path)
	if err != nil {
		return nil, faults.Configuration("load", "open checkpoint").With("path", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	if a, _ := f.GetString("general.architecture"); a != arch {
		return nil, faults.Configuration("load", "unsupported architecture %q (want %s)", a, arch).With("path", path)
	}

	cfg := Config{Eps: 1e-5}
	cfg.Name, _ = f.GetString("general.name")
	getInt := func(key string) int {
		v, _ := f.GetUint(arch + "." + key)
		return int(v)
	}
	cfg.ContextWindow = getInt("context_length")
	cfg.Dim = getInt("embedding_length")
	cfg.HiddenDim = getInt("feed_forward_length")
	cfg.Layers = getInt("block_count")
	cfg.Heads = getInt("attention.head_count")
	if eps, ok := f.GetFloat(arch + ".attention.layer_norm_epsilon"); ok {
		cfg.Eps = float32(eps)
	}
	if emb, ok := f.Tensor("token_embd.weight"); ok {
		if shape := emb.Shape(); len(shape) == 2 {
			cfg.VocabSize = shape[0]
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, faults.Configuration("load", "invalid checkpoint config").With("path", path).Wrap(err)
	}

	d, h, v := cfg.Dim, cfg.HiddenDim, cfg.VocabSize
	read := func(name string, shape ...int) ([]float32, error) {
		t, ok := f.Tensor(name)
		if !ok {
			return nil, faults.Configuration("load", "missing tensor %s", name).With("path", path)
		}
		got := t.Shape()
		if len(got) != len(shape) {
			return nil, faults.Configuration("load", "tensor %s has shape %v, want %v", name, got, shape)
		}
		for i := range got {
			if got[i] != shape[i] {
				return nil, faults.Configuration("load", "tensor %s has shape %v, want %v", name, got, shape)
			}
		}
		data, err := t.Float32s()
		if err != nil {
			return nil, faults.Configuration("load", "decode tensor %s", name).Wrap(err)
		}
		return data, nil
	}

	var w Weights
	var firstErr error
	must := func(name string, shape ...int) []float32 {
		if firstErr != nil {
			return nil
		}
		data, err := read(name, shape...)
		if err != nil {
			firstErr = err
		}
		return data
	}

	w.TokenEmbd = must("token_embd.weight", v, d)
	w.PosEmbd = must("position_embd.weight", cfg.ContextWindow, d)
	for i := 0; i < cfg.Layers; i++ {
		w.Blocks = append(w.Blocks, Block{
			AttnNormW: must(blk(i, "attn_norm.weight"), d),
			AttnNormB: must(blk(i, "attn_norm.bias"), d),
			QKVW:      must(blk(i, "attn_qkv.weight"), 3*d, d),
			QKVB:      must(blk(i, "attn_qkv.bias"), 3*d),
			AttnOutW:  must(blk(i, "attn_output.weight"), d, d),
			AttnOutB:  must(blk(i, "attn_output.bias"), d),
			FFNNormW:  must(blk(i, "ffn_norm.weight"), d),
			FFNNormB:  must(blk(i, "ffn_norm.bias"), d),
			UpW:       must(blk(i, "ffn_up.weight"), h, d),
			UpB:       must(blk(i, "ffn_up.bias"), h),
			DownW:     must(blk(i, "ffn_down.weight"), d, h),
			DownB:     must(blk(i, "ffn_down.bias"), d),
		})
	}
	w.OutNormW = must("output_norm.weight", d)
	w.OutNormB = must("output_norm.bias", d)
	if firstErr != nil {
		return nil, firstErr
	}
	if _, ok := f.Tensor("output.weight"); ok {
		if w.Output, err = read("output.weight", v, d); err != nil {
			return nil, err
		}
	} else {
		w.Output = w.TokenEmbd
	}

	m := newModel(cfg, w)
	if toks, ok := f.GetStrings("tokenizer.ggml.tokens"); ok {
		m.Vocab = toks
	}

	logger.Log.Info("Loaded checkpoint",
		"path", path,
		"name", cfg.Name,
		"layers", cfg.Layers,
		"dim", cfg.Dim,
		"vocab", cfg.VocabSize,
		"sites", len(m.Sites()))
	return m, nil
}
