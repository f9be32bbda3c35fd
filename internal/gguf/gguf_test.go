package gguf

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"
)

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.gguf")

	w := NewWriter()
	w.SetKV("general.architecture", "gpt2")
	w.SetKV("general.name", "tiny")
	w.SetKV("gpt2.context_length", uint32(16))
	w.SetKV("gpt2.embedding_length", uint32(4))
	w.SetKV("gpt2.attention.layer_norm_epsilon", float32(1e-5))
	w.SetKV("tokenizer.ggml.tokens", []string{"a", "b", "Ġc"})

	if err := w.AddTensor("token_embd.weight", []int{3, 4}, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}); err != nil {
		t.Fatalf("AddTensor: %v", err)
	}
	if err := w.AddTensor("output_norm.bias", []int{3}, []float32{-1, 0.5, 2}); err != nil {
		t.Fatalf("AddTensor: %v", err)
	}
	if err := w.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Header.Version != GGUFVersion {
		t.Errorf("Expected version %d, got %d", GGUFVersion, f.Header.Version)
	}
	if arch, _ := f.GetString("general.architecture"); arch != "gpt2" {
		t.Errorf("Expected architecture gpt2, got %q", arch)
	}
	if ctx, ok := f.GetUint("gpt2.context_length"); !ok || ctx != 16 {
		t.Errorf("Expected context length 16, got %d (%v)", ctx, ok)
	}
	if eps, ok := f.GetFloat("gpt2.attention.layer_norm_epsilon"); !ok || eps < 9e-6 || eps > 1.1e-5 {
		t.Errorf("Expected eps 1e-5, got %v", eps)
	}
	toks, ok := f.GetStrings("tokenizer.ggml.tokens")
	if !ok || len(toks) != 3 || toks[2] != "Ġc" {
		t.Errorf("Expected 3 tokens, got %v", toks)
	}

	emb, ok := f.Tensor("token_embd.weight")
	if !ok {
		t.Fatal("token_embd.weight missing")
	}
	shape := emb.Shape()
	if len(shape) != 2 || shape[0] != 3 || shape[1] != 4 {
		t.Errorf("Expected shape [3 4], got %v", shape)
	}
	vals, err := emb.Float32s()
	if err != nil {
		t.Fatalf("Float32s: %v", err)
	}
	if vals[5] != 5 || vals[11] != 11 {
		t.Errorf("Expected sequential values, got %v", vals)
	}

	bias, _ := f.Tensor("output_norm.bias")
	if bias.Offset%DefaultAlignment != 0 {
		t.Errorf("Expected aligned offset, got %d", bias.Offset)
	}
	bv, _ := bias.Float32s()
	if bv[0] != -1 || bv[1] != 0.5 || bv[2] != 2 {
		t.Errorf("Expected [-1 0.5 2], got %v", bv)
	}

	if missing := f.MissingTensors([]string{"token_embd.weight", "blk.0.attn_qkv.weight"}); len(missing) != 1 {
		t.Errorf("Expected one missing tensor, got %v", missing)
	}

	s := f.Summarize()
	if s.TotalParameters != 15 || s.EmbeddingLength != 4 {
		t.Errorf("Unexpected summary %+v", s)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf, 0xdeadbeef)
	_, err := Parse(buf)
	if _, ok := err.(ErrInvalidMagic); !ok {
		t.Errorf("Expected ErrInvalidMagic, got %v", err)
	}
}

func TestParseTruncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter()
	_ = w.AddTensor("x", []int{8}, make([]float32, 8))
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	data := buf.Bytes()
	if _, err := Parse(data[:len(data)-16]); err == nil {
		t.Error("Expected error for truncated tensor data")
	}
}

func TestAddTensorValidatesShape(t *testing.T) {
	w := NewWriter()
	if err := w.AddTensor("x", []int{2, 2}, []float32{1}); err == nil {
		t.Error("Expected shape error")
	}
}

func TestFloat16(t *testing.T) {
	tests := []struct {
		bits uint16
		want float32
	}{
		{0x3C00, 1},
		{0xC000, -2},
		{0x0000, 0},
		{0x3800, 0.5},
	}
	for _, tt := range tests {
		if got := float16ToFloat32(tt.bits); got != tt.want {
			t.Errorf("float16ToFloat32(%#x): expected %v, got %v", tt.bits, tt.want, got)
		}
	}
}
