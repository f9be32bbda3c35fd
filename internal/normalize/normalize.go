// Package normalize reduces captured tensors of any rank to fixed-length
// feature vectors and stacks them into per-component matrices.
package normalize

import (
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/metrics"
	"github.com/23skdu/longbow-neurons/internal/run"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

// Rule is one (predicate, reduction) pair. Rules are tried in order.
type Rule struct {
	Name   string
	Match  func(t *tensor.Tensor) bool
	Reduce func(t *tensor.Tensor) []float32
}

// Rules is the reduction policy, highest priority first. The final rule
// matches everything.
var Rules = []Rule{
	{
		Name:   "squeeze",
		Match:  func(t *tensor.Tensor) bool { return t.Rank() == 3 && t.Shape[0] == 1 && t.Shape[1] == 1 },
		Reduce: func(t *tensor.Tensor) []float32 { return copyOf(t.Data) },
	},
	{
		Name:   "mean_sequence",
		Match:  func(t *tensor.Tensor) bool { return t.Rank() == 3 && t.Shape[0] == 1 },
		Reduce: func(t *tensor.Tensor) []float32 { return meanRows(t.Data, t.Shape[1], t.Shape[2]) },
	},
	{
		Name:   "mean_rows",
		Match:  func(t *tensor.Tensor) bool { return t.Rank() == 2 },
		Reduce: func(t *tensor.Tensor) []float32 { return meanRows(t.Data, t.Shape[0], t.Shape[1]) },
	},
	{
		Name:   "identity",
		Match:  func(t *tensor.Tensor) bool { return t.Rank() == 1 },
		Reduce: func(t *tensor.Tensor) []float32 { return copyOf(t.Data) },
	},
	{
		Name:  "flatten",
		Match: func(*tensor.Tensor) bool { return true },
		Reduce: func(t *tensor.Tensor) []float32 {
			logger.Log.Warn("Flattening unusual shape", "shape", t.Shape)
			metrics.RecordShapeFallback("normalize")
			return copyOf(t.Data)
		},
	},
}

// One reduces a tensor to a vector using the first matching rule.
func One(t *tensor.Tensor) []float32 {
	v, _ := OneWithRule(t)
	return v
}

// OneWithRule also reports which rule applied.
func OneWithRule(t *tensor.Tensor) ([]float32, string) {
	for _, r := range Rules {
		if r.Match(t) {
			return r.Reduce(t), r.Name
		}
	}
	return copyOf(t.Data), "flatten"
}

// Matrix is a component's stacked feature vectors.
type Matrix struct {
	Rows   [][]float32
	Labels []string
	IDs    []string
}

func (m *Matrix) Len() int {
	return len(m.Rows)
}

// Width is the feature dimension, 0 for an empty matrix.
func (m *Matrix) Width() int {
	if len(m.Rows) == 0 {
		return 0
	}
	return len(m.Rows[0])
}

// Many normalizes samples and keeps only vectors with the most frequent
// length, in input order. Ties go to the length seen first.
func Many(samples []run.Sample) (*Matrix, int) {
	vecs := make([][]float32, len(samples))
	counts := make(map[int]int)
	var firstSeen []int
	for i, s := range samples {
		vecs[i] = One(s.Tensor)
		n := len(vecs[i])
		if counts[n] == 0 {
			firstSeen = append(firstSeen, n)
		}
		counts[n]++
	}

	majority, best := 0, 0
	for _, n := range firstSeen {
		if counts[n] > best {
			majority, best = n, counts[n]
		}
	}

	m := &Matrix{}
	for i, v := range vecs {
		if len(v) != majority {
			continue
		}
		m.Rows = append(m.Rows, v)
		m.Labels = append(m.Labels, samples[i].Label)
		m.IDs = append(m.IDs, samples[i].ExampleID)
	}
	return m, len(samples) - m.Len()
}

func meanRows(data []float32, rows, cols int) []float32 {
	out := make([]float32, cols)
	if rows == 0 {
		return out
	}
	acc := make([]float64, cols)
	for r := 0; r < rows; r++ {
		for c, v := range data[r*cols : (r+1)*cols] {
			acc[c] += float64(v)
		}
	}
	for c := range out {
		out[c] = float32(acc[c] / float64(rows))
	}
	return out
}

func copyOf(v []float32) []float32 {
	return append([]float32(nil), v...)
}
