package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/23skdu/longbow-neurons/internal/run"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

func TestOneRules(t *testing.T) {
	tests := []struct {
		name     string
		in       *tensor.Tensor
		wantRule string
		want     []float32
	}{
		{"squeeze [1,1,D]", tensor.MustFromSlice([]float32{1, 2, 3}, 1, 1, 3), "squeeze", []float32{1, 2, 3}},
		{"mean over sequence", tensor.MustFromSlice([]float32{1, 2, 3, 4}, 1, 2, 2), "mean_sequence", []float32{2, 3}},
		{"rank 2 mean", tensor.MustFromSlice([]float32{1, 10, 3, 20}, 2, 2), "mean_rows", []float32{2, 15}},
		{"rank 2 single row", tensor.MustFromSlice([]float32{5, 6}, 1, 2), "mean_rows", []float32{5, 6}},
		{"identity", tensor.Vector(4, 5, 6), "identity", []float32{4, 5, 6}},
		{"rank 4 flattens", tensor.MustFromSlice([]float32{1, 2, 3, 4}, 1, 1, 2, 2), "flatten", []float32{1, 2, 3, 4}},
		{"batch 2 flattens", tensor.MustFromSlice([]float32{1, 2, 3, 4}, 2, 1, 2), "flatten", []float32{1, 2, 3, 4}},
		{"scalar flattens", &tensor.Tensor{Shape: []int{}, Data: []float32{7}}, "flatten", []float32{7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := OneWithRule(tt.in)
			assert.Equal(t, tt.wantRule, rule)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOneIdempotentOnVectors(t *testing.T) {
	v := tensor.Vector(0.5, -1, 3)
	once := One(v)
	assert.Equal(t, v.Data, once)
	assert.Equal(t, once, One(tensor.Vector(once...)))
}

func TestOneShapeStable(t *testing.T) {
	shapes := [][]int{{1, 1, 6}, {1, 4, 6}, {3, 6}, {6}, {2, 3, 4}}
	for _, shape := range shapes {
		a := One(tensor.New(shape...))
		b := One(tensor.New(shape...))
		assert.Equal(t, len(a), len(b), "shape %v", shape)
	}
}

func TestOneDoesNotAlias(t *testing.T) {
	v := tensor.Vector(1, 2)
	out := One(v)
	out[0] = 99
	assert.Equal(t, float32(1), v.Data[0])
}

func sample(id, label string, t *tensor.Tensor) run.Sample {
	return run.Sample{Tensor: t, Label: label, ExampleID: id}
}

func TestManyKeepsMajorityShape(t *testing.T) {
	samples := []run.Sample{
		sample("0", "joy", tensor.Vector(1, 2, 3)),
		sample("1", "sad", tensor.Vector(1, 2)),
		sample("2", "joy", tensor.MustFromSlice([]float32{1, 1, 1, 3, 3, 3}, 1, 2, 3)),
		sample("3", "sad", tensor.Vector(4, 5, 6)),
		sample("4", "joy", tensor.Vector(9)),
	}
	m, discarded := Many(samples)

	// N=5, M=3 share length 3
	assert.Equal(t, 2, discarded)
	assert.Equal(t, len(samples)-m.Len(), discarded)
	assert.Equal(t, []string{"0", "2", "3"}, m.IDs)
	assert.Equal(t, []string{"joy", "joy", "sad"}, m.Labels)
	assert.Equal(t, []float32{2, 2, 2}, m.Rows[1])
	assert.Equal(t, 3, m.Width())
}

func TestManyTieGoesToFirstSeen(t *testing.T) {
	samples := []run.Sample{
		sample("0", "a", tensor.Vector(1, 2)),
		sample("1", "b", tensor.Vector(1, 2, 3)),
		sample("2", "a", tensor.Vector(3, 4, 5)),
		sample("3", "b", tensor.Vector(5, 6)),
	}
	m, discarded := Many(samples)
	assert.Equal(t, 2, discarded)
	assert.Equal(t, []string{"0", "3"}, m.IDs)

	again, _ := Many(samples)
	assert.Equal(t, m, again)
}

func TestManyEmpty(t *testing.T) {
	m, discarded := Many(nil)
	assert.Equal(t, 0, discarded)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, m.Width())
}
