package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/run"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

var (
	abRows   = [][]float32{{1, 0, 0, 0}, {1, 1, 0, 0}, {0, 0, 1, 1}}
	abLabels = []string{"A", "A", "B"}
)

func indices(ns []Neuron) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.Index
	}
	return out
}

func TestImportanceSeparatesCategories(t *testing.T) {
	a := Importance(abRows, abLabels, "A", 20)
	require.Len(t, a, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, indices(a))
	assert.InDelta(t, 1.0, a[0].Score, 1e-9)
	assert.InDelta(t, 0.5, a[1].Score, 1e-9)
	assert.InDelta(t, -1.0, a[3].Score, 1e-9)

	b := Importance(abRows, abLabels, "B", 20)
	// 2 and 3 tie; ascending index breaks it
	assert.Equal(t, []int{2, 3, 1, 0}, indices(b))
}

func TestImportanceTopK(t *testing.T) {
	rows := make([][]float32, 4)
	labels := []string{"x", "x", "y", "y"}
	for i := range rows {
		rows[i] = make([]float32, 30)
		for j := range rows[i] {
			if labels[i] == "x" {
				rows[i][j] = float32(j)
			}
		}
	}
	got := Importance(rows, labels, "x", 0)
	require.Len(t, got, DefaultTopK)
	assert.Equal(t, 29, got[0].Index)

	got = Importance(abRows, abLabels, "A", 2)
	assert.Equal(t, []int{0, 1}, indices(got))
}

func TestImportanceNeedsBothPartitions(t *testing.T) {
	assert.Empty(t, Importance(abRows, abLabels, "missing", 20))
	assert.Empty(t, Importance(abRows[:2], abLabels[:2], "A", 20))
	assert.Empty(t, Importance(nil, nil, "A", 20))
}

func TestRaggedRowsRejected(t *testing.T) {
	ragged := [][]float32{{1, 2}, {1}}
	assert.Nil(t, Importance(ragged, []string{"a", "b"}, "a", 20))
	assert.Nil(t, Importance([][]float32{{1}, {1, 2}}, []string{"a", "b"}, "a", 20))
	assert.Nil(t, ColumnMeans(ragged))
	assert.Empty(t, TopByMean(ragged, 5))
}

func TestProject(t *testing.T) {
	rows := [][]float32{{0, 0}, {1, 0}, {2, 0}}
	p, err := Project(rows)
	require.NoError(t, err)

	require.Len(t, p.Coords, 3)
	assert.InDelta(t, -1, p.Coords[0][0], 1e-9)
	assert.InDelta(t, 0, p.Coords[1][0], 1e-9)
	assert.InDelta(t, 1, p.Coords[2][0], 1e-9)
	for _, c := range p.Coords {
		assert.InDelta(t, 0, c[1], 1e-9)
	}
	assert.Greater(t, p.Variance[0], p.Variance[1])

	again, err := Project(rows)
	require.NoError(t, err)
	assert.Equal(t, p.Coords, again.Coords)

	pts := p.Points([]string{"a", "b", "c"}, []string{"x", "y", "x"})
	assert.Equal(t, "b", pts[1].ID)
	assert.Equal(t, "y", pts[1].Label)
}

func TestProjectSignConvention(t *testing.T) {
	rows := [][]float32{{2, 0}, {1, 0}, {0, 0}}
	p, err := Project(rows)
	require.NoError(t, err)
	// same axis regardless of row order: larger x projects higher
	assert.Greater(t, p.Coords[0][0], p.Coords[2][0])
}

func TestProjectNeedsTwoRows(t *testing.T) {
	_, err := Project([][]float32{{1, 2}})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	per := map[string][]ComponentImportance{
		"joy": {
			{Component: "layer_0_output", Neurons: []Neuron{{3, 0.5}, {1, 0.2}}},
			{Component: "final_layer", Neurons: []Neuron{{7, 0.9}, {2, 0.8}, {5, 0.1}, {6, 0.05}}},
			{Component: "layer_1_output", Neurons: []Neuron{{4, 0.9}}},
		},
		"sad": {
			{Component: "final_layer", Neurons: []Neuron{{1, -0.1}}},
			{Component: "layer_0_output", Neurons: nil},
		},
	}
	got := Summarize([]string{"joy", "sad", "fear"}, per)
	require.Len(t, got, 3)

	joy := got[0]
	assert.True(t, joy.Found)
	assert.Equal(t, "final_layer", joy.Component, "tie goes to the earlier component")
	assert.Equal(t, 7, joy.Neuron)
	assert.Equal(t, []int{7, 2, 5}, indices(joy.Top))

	assert.False(t, got[1].Found, "no positive score")
	assert.False(t, got[2].Found)
	assert.Equal(t, "fear", got[2].Category)
}

func TestStats(t *testing.T) {
	s := Stats(tensor.Vector(1, 2, 3, 0, float32(math.NaN()), float32(math.Inf(1))))
	assert.Equal(t, 1, s.NaN)
	assert.Equal(t, 1, s.Inf)
	assert.Equal(t, 1, s.Zeros)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
	assert.InDelta(t, 1.5, s.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(5.0/3.0), s.Std, 1e-9)
}

func TestTopByMean(t *testing.T) {
	got := TopByMean([][]float32{{1, 5, 3}, {1, 3, 5}}, 2)
	assert.Equal(t, []int{1, 2}, indices(got))
}

func TestCategoryHeatmap(t *testing.T) {
	h := CategoryHeatmap(abRows, abLabels, []string{"A", "B", "C"}, 2)
	assert.Equal(t, 2, h.Width)
	assert.Equal(t, []int{2, 1, 0}, h.Counts)
	assert.Equal(t, []float64{1, 0.5}, h.Values[0])
	assert.Equal(t, []float64{0, 0}, h.Values[1])
	assert.Equal(t, []float64{0, 0}, h.Values[2])
}

func TestKeyComponents(t *testing.T) {
	avail := []string{"input_embeds", "layer_2_output", "layer_10_output", "layer_9_output", "layer_11_output", "layer_11_attn", "final_layer"}
	assert.Equal(t, []string{"final_layer", "layer_11_output", "layer_10_output", "layer_9_output"}, KeyComponents(avail))
	assert.Empty(t, KeyComponents([]string{"layer_0_mlp"}))
}

func emotionRun() *run.Run {
	r := run.New("synthetic", []string{"final_layer"})
	for i, lbl := range []string{"joy", "joy", "sad"} {
		id := string(rune('a' + i))
		r.Metadata.Append(run.Example{ID: id, Label: lbl})
		r.Append("final_layer", run.Sample{Tensor: tensor.MustFromSlice(abRows[i], 1, 4), Label: lbl, ExampleID: id})
	}
	return r
}

func TestAnalyzeRunEndToEnd(t *testing.T) {
	rep, err := AnalyzeRun(context.Background(), emotionRun(), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"joy", "sad"}, rep.Categories)
	require.Len(t, rep.Components, 1)
	cr := rep.Components[0]
	assert.Equal(t, 3, cr.Kept)
	assert.Equal(t, 4, cr.Width)
	assert.Contains(t, indices(cr.Importance["joy"][:1]), 0)
	assert.Len(t, cr.Projection, 3)

	require.Len(t, rep.Summary, 2)
	assert.True(t, rep.Summary[0].Found)
	assert.Equal(t, "final_layer", rep.Summary[0].Component)
	assert.Equal(t, 0, rep.Summary[0].Neuron)
	assert.Equal(t, 2, rep.Summary[1].Neuron)
}

func TestAnalyzeRunDiscardsMinorityShapes(t *testing.T) {
	r := emotionRun()
	r.Metadata.Append(run.Example{ID: "odd", Label: "sad"})
	r.Append("final_layer", run.Sample{Tensor: tensor.Vector(1, 2), Label: "sad", ExampleID: "odd"})

	rep, err := AnalyzeRun(context.Background(), r, Options{Components: []string{"final_layer"}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Components[0].Discarded)
	assert.Equal(t, 3, rep.Components[0].Kept)
}

func TestAnalyzeRunUnknownComponent(t *testing.T) {
	_, err := AnalyzeRun(context.Background(), emotionRun(), Options{Components: []string{"logits"}})
	assert.True(t, errors.Is(err, faults.ErrConfiguration))
}

func TestAnalyzeComponentSingleRow(t *testing.T) {
	samples := []run.Sample{{Tensor: tensor.Vector(1, 2), Label: "joy", ExampleID: "a"}}
	cr := AnalyzeComponent("final_layer", samples, []string{"joy"}, DefaultOptions())
	assert.NotEmpty(t, cr.ProjectionError)
	assert.Empty(t, cr.Importance["joy"])
}
