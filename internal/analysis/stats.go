package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/23skdu/longbow-neurons/internal/tensor"
)

// TensorStats summarises one captured tensor.
type TensorStats struct {
	Shape []int   `json:"shape"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Zeros int     `json:"zeros"`
	NaN   int     `json:"nan"`
	Inf   int     `json:"inf"`
}

// Stats ignores non-finite values for min/max/mean/std.
func Stats(t *tensor.Tensor) TensorStats {
	s := TensorStats{Shape: append([]int(nil), t.Shape...)}
	finite := make([]float64, 0, len(t.Data))
	for _, v := range t.Data {
		f := float64(v)
		switch {
		case math.IsNaN(f):
			s.NaN++
		case math.IsInf(f, 0):
			s.Inf++
		default:
			if f == 0 {
				s.Zeros++
			}
			finite = append(finite, f)
		}
	}
	if len(finite) == 0 {
		return s
	}
	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	if len(finite) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(finite, nil)
	} else {
		s.Mean = finite[0]
	}
	return s
}

// TopByMean ranks features by their mean activation across rows.
func TopByMean(rows [][]float32, n int) []Neuron {
	return rank(ColumnMeans(rows), n)
}

// ColumnMeans averages rows feature-wise. Ragged rows yield nil.
func ColumnMeans(rows [][]float32) []float64 {
	if len(rows) == 0 {
		return nil
	}
	sum := make([]float64, len(rows[0]))
	row := make([]float64, len(sum))
	for _, r := range rows {
		if len(r) != len(sum) {
			return nil
		}
		for j, v := range r {
			row[j] = float64(v)
		}
		floats.Add(sum, row)
	}
	floats.Scale(1/float64(len(rows)), sum)
	return sum
}

// Heatmap holds per-category mean activations of the first Width neurons.
type Heatmap struct {
	Categories []string    `json:"categories"`
	Counts     []int       `json:"counts"`
	Width      int         `json:"width"`
	Values     [][]float64 `json:"values"`
}

func CategoryHeatmap(rows [][]float32, labels []string, categories []string, width int) Heatmap {
	h := Heatmap{Categories: append([]string(nil), categories...)}
	if len(rows) > 0 {
		h.Width = len(rows[0])
	}
	if width > 0 && width < h.Width {
		h.Width = width
	}
	for _, cat := range categories {
		var sel [][]float32
		for i, l := range labels {
			if l == cat {
				sel = append(sel, rows[i][:h.Width])
			}
		}
		h.Counts = append(h.Counts, len(sel))
		means := ColumnMeans(sel)
		if means == nil {
			means = make([]float64, h.Width)
		}
		h.Values = append(h.Values, means)
	}
	return h
}
