package gguf

import (
	"fmt"
	"strings"
)

// GetUint returns the first integer value found under keys.
func (f *GGUFFile) GetUint(keys ...string) (uint64, bool) {
	for _, key := range keys {
		val, ok := f.KV[key]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case uint64:
			return v, true
		case int64:
			return uint64(v), true
		case uint32:
			return uint64(v), true
		case int32:
			return uint64(v), true
		case uint16:
			return uint64(v), true
		case uint8:
			return uint64(v), true
		}
	}
	return 0, false
}

func (f *GGUFFile) GetString(key string) (string, bool) {
	v, ok := f.KV[key].(string)
	return v, ok
}

func (f *GGUFFile) GetFloat(key string) (float64, bool) {
	switch v := f.KV[key].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// GetStrings returns a string array value such as tokenizer.ggml.tokens.
func (f *GGUFFile) GetStrings(key string) ([]string, bool) {
	arr, ok := f.KV[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Summary is a short description of a checkpoint.
type Summary struct {
	Architecture    string
	ModelName       string
	ContextLength   int
	EmbeddingLength int
	BlockCount      int
	TensorCount     int
	TotalParameters int64
	SizeBytes       int64
}

func (f *GGUFFile) Summarize() *Summary {
	s := &Summary{TensorCount: len(f.Tensors)}
	s.Architecture, _ = f.GetString("general.architecture")
	s.ModelName, _ = f.GetString("general.name")

	arch := s.Architecture
	if v, ok := f.GetUint(arch+".context_length", "general.context_length"); ok {
		s.ContextLength = int(v)
	}
	if v, ok := f.GetUint(arch+".embedding_length", arch+".hidden_size"); ok {
		s.EmbeddingLength = int(v)
	}
	if v, ok := f.GetUint(arch + ".block_count"); ok {
		s.BlockCount = int(v)
	}
	for _, t := range f.Tensors {
		s.TotalParameters += int64(t.NumElements())
		s.SizeBytes += int64(t.SizeBytes())
	}
	return s
}

// MissingTensors lists the required names absent from the file.
func (f *GGUFFile) MissingTensors(required []string) []string {
	existing := make(map[string]bool, len(f.Tensors))
	for _, t := range f.Tensors {
		existing[t.Name] = true
	}
	var missing []string
	for _, name := range required {
		if !existing[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func (s *Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Architecture:     %s\n", s.Architecture)
	fmt.Fprintf(&sb, "Model Name:       %s\n", s.ModelName)
	fmt.Fprintf(&sb, "Context Length:   %d\n", s.ContextLength)
	fmt.Fprintf(&sb, "Embedding:        %d\n", s.EmbeddingLength)
	fmt.Fprintf(&sb, "Blocks:           %d\n", s.BlockCount)
	fmt.Fprintf(&sb, "Total Tensors:    %d\n", s.TensorCount)
	fmt.Fprintf(&sb, "Total Parameters: %d (%.2fM)\n", s.TotalParameters, float64(s.TotalParameters)/1e6)
	fmt.Fprintf(&sb, "Tensor Data:      %.2f MB\n", float64(s.SizeBytes)/(1024*1024))
	return sb.String()
}
