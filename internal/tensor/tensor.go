// Package tensor holds the dense float32 tensor exchanged between the model,
// the capture layer and the normalizer.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, numel(shape)),
	}
}

// FromSlice wraps data without copying. It fails when the element count
// does not match the shape.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// MustFromSlice is FromSlice for literals in tests and fixtures.
func MustFromSlice(data []float32, shape ...int) *Tensor {
	t, err := FromSlice(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// Vector builds a rank-1 tensor from values.
func Vector(values ...float32) *Tensor {
	return &Tensor{Shape: []int{len(values)}, Data: append([]float32(nil), values...)}
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) Rank() int {
	return len(t.Shape)
}

func (t *Tensor) Numel() int {
	return len(t.Data)
}

// Dim returns the size of dimension i, or 0 when out of range.
func (t *Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// Flatten returns a rank-1 copy.
func (t *Tensor) Flatten() *Tensor {
	return &Tensor{Shape: []int{len(t.Data)}, Data: append([]float32(nil), t.Data...)}
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// LastPosition selects the final sequence position of a [B, T, D] tensor,
// returning a [B, D] copy.
func (t *Tensor) LastPosition() (*Tensor, error) {
	if t.Rank() != 3 {
		return nil, fmt.Errorf("last position needs rank 3, got shape %v", t.Shape)
	}
	b, seq, d := t.Shape[0], t.Shape[1], t.Shape[2]
	if seq == 0 {
		return nil, fmt.Errorf("last position of empty sequence, shape %v", t.Shape)
	}
	out := New(b, d)
	for i := 0; i < b; i++ {
		src := t.Data[(i*seq+seq-1)*d : (i*seq+seq)*d]
		copy(out.Data[i*d:(i+1)*d], src)
	}
	return out, nil
}

// Row returns a view of row i of a rank-2 tensor.
func (t *Tensor) Row(i int) []float32 {
	cols := t.Shape[len(t.Shape)-1]
	return t.Data[i*cols : (i+1)*cols]
}

// Float64s converts the data to float64.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out
}

// CountNaNInf counts NaN and Inf values.
func (t *Tensor) CountNaNInf() (nanCount, infCount int) {
	for _, v := range t.Data {
		if math.IsNaN(float64(v)) {
			nanCount++
		} else if math.IsInf(float64(v), 0) {
			infCount++
		}
	}
	return nanCount, infCount
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}
