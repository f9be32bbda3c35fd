// Package analysis ranks discriminative neurons per category and projects
// feature matrices to two dimensions.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const DefaultTopK = 20

// Neuron is one ranked feature dimension.
type Neuron struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Importance scores every feature by mean(in category) - mean(rest) and
// returns the top k, descending, ties by ascending index. It returns nil
// unless both partitions are non-empty and every row has the same width.
// NaN scores are not ranked.
func Importance(rows [][]float32, labels []string, category string, k int) []Neuron {
	if len(rows) == 0 || len(rows) != len(labels) {
		return nil
	}
	width := len(rows[0])
	in := make([]float64, width)
	out := make([]float64, width)
	nIn, nOut := 0, 0
	row := make([]float64, width)
	for i, r := range rows {
		if len(r) != width {
			return nil
		}
		for j, v := range r {
			row[j] = float64(v)
		}
		if labels[i] == category {
			floats.Add(in, row)
			nIn++
		} else {
			floats.Add(out, row)
			nOut++
		}
	}
	if nIn == 0 || nOut == 0 {
		return nil
	}
	floats.Scale(1/float64(nIn), in)
	floats.Scale(1/float64(nOut), out)
	floats.Sub(in, out)
	return rank(in, k)
}

// rank orders indices by descending score with a stable index tiebreak.
func rank(scores []float64, k int) []Neuron {
	if k <= 0 {
		k = DefaultTopK
	}
	idx := make([]int, 0, len(scores))
	for i, s := range scores {
		if !math.IsNaN(s) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if len(idx) > k {
		idx = idx[:k]
	}
	out := make([]Neuron, len(idx))
	for i, j := range idx {
		out[i] = Neuron{Index: j, Score: scores[j]}
	}
	return out
}
