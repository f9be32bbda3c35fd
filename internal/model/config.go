package model

import "fmt"

type Config struct {
	Name          string
	VocabSize     int
	ContextWindow int
	Dim           int
	Heads         int
	Layers        int
	HiddenDim     int
	Eps           float32
}

func (c *Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("invalid vocab_size: %d (must be positive)", c.VocabSize)
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("invalid context_window: %d (must be positive)", c.ContextWindow)
	}
	if c.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d (must be positive)", c.Dim)
	}
	if c.Heads <= 0 {
		return fmt.Errorf("invalid heads: %d (must be positive)", c.Heads)
	}
	if c.Dim%c.Heads != 0 {
		return fmt.Errorf("dim mismatch: %d not divisible by heads(%d)", c.Dim, c.Heads)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("invalid layers: %d (must be positive)", c.Layers)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("invalid hidden_dim: %d (must be positive)", c.HiddenDim)
	}
	if c.Eps <= 0 {
		return fmt.Errorf("invalid eps: %f (must be positive)", c.Eps)
	}
	return nil
}

func (c *Config) HeadDim() int {
	return c.Dim / c.Heads
}

// Default is a small 12-block GPT-2 shaped network over a byte vocabulary.
func Default() Config {
	return Config{
		Name:          "gpt2-byte-small",
		VocabSize:     256,
		ContextWindow: 128,
		Dim:           64,
		Heads:         4,
		Layers:        12,
		HiddenDim:     256,
		Eps:           1e-5,
	}
}
