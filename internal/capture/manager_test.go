package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/hooks"
	"github.com/23skdu/longbow-neurons/internal/model"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

var fakeSites = []string{"embed", "block_a", "block_b", "final"}

func newFake() *hooks.Registry {
	return hooks.NewRegistry(fakeSites)
}

func seq(d int, rows ...[]float32) *tensor.Tensor {
	var data []float32
	for _, r := range rows {
		data = append(data, r...)
	}
	return tensor.MustFromSlice(data, 1, len(rows), d)
}

func TestRegisterYieldsSlots(t *testing.T) {
	reg := newFake()
	m := New(reg)
	for _, s := range fakeSites[:3] {
		require.NoError(t, m.Register(s))
	}
	assert.Equal(t, 3, reg.HookCount())
	assert.Equal(t, fakeSites[:3], m.Components())

	require.NoError(t, m.Enable())
	// block_b never executes in this inference
	reg.Fire("embed", hooks.Output{Primary: seq(2, []float32{1, 2})})
	reg.Fire("block_a", hooks.Output{Primary: seq(2, []float32{3, 4})})
	reg.Fire("final", hooks.Output{Primary: seq(2, []float32{5, 6})})
	require.NoError(t, m.Disable())

	c, err := m.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"embed", "block_a"}, c.Components())
	_, ok := c.Get("block_b")
	assert.False(t, ok)
}

func TestRegisterErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Manager) error
	}{
		{"unknown site", func(m *Manager) error { return m.Register("missing") }},
		{"duplicate", func(m *Manager) error {
			_ = m.Register("embed")
			return m.Register("embed")
		}},
		{"after leaving idle", func(m *Manager) error {
			_ = m.Register("embed")
			_ = m.Enable()
			return m.Register("final")
		}},
		{"nothing to seal", func(m *Manager) error { return m.Enable() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.setup(New(newFake()))
			require.Error(t, err)
			assert.True(t, errors.Is(err, faults.ErrConfiguration), "got %v", err)
		})
	}
}

func TestStateTransitions(t *testing.T) {
	m := New(newFake())
	require.NoError(t, m.Register("embed"))
	assert.Equal(t, Idle, m.State())

	_, err := m.Collect()
	assert.True(t, errors.Is(err, faults.ErrState))
	assert.True(t, errors.Is(m.Disable(), faults.ErrState))

	require.NoError(t, m.Enable())
	assert.Equal(t, Capturing, m.State())

	err = m.Enable()
	assert.True(t, errors.Is(err, faults.ErrState), "double enable must fail")

	_, err = m.Collect()
	assert.True(t, errors.Is(err, faults.ErrState), "collect while capturing must fail")

	require.NoError(t, m.Disable())
	assert.Equal(t, Armed, m.State())

	err = m.Enable()
	assert.True(t, errors.Is(err, faults.ErrState), "enable before collect must fail")

	c, err := m.Collect()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Seq)

	require.NoError(t, m.Enable())
	require.NoError(t, m.Disable())
	c, err = m.Collect()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Seq)
}

func TestDisabledObservationIsNoop(t *testing.T) {
	reg := newFake()
	m := New(reg)
	require.NoError(t, m.Register("embed"))
	require.NoError(t, m.Seal())

	reg.Fire("embed", hooks.Output{Primary: seq(2, []float32{1, 1})})

	require.NoError(t, m.Enable())
	require.NoError(t, m.Disable())
	// inference completes after disable
	reg.Fire("embed", hooks.Output{Primary: seq(2, []float32{1, 1})})

	c, err := m.Collect()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestLastWriteWins(t *testing.T) {
	reg := newFake()
	m := New(reg)
	require.NoError(t, m.Register("block_a"))
	require.NoError(t, m.Enable())

	reg.Fire("block_a", hooks.Output{Primary: seq(2, []float32{1, 1})})
	reg.Fire("block_a", hooks.Output{Primary: seq(2, []float32{7, 8})})
	require.NoError(t, m.Disable())

	c, err := m.Collect()
	require.NoError(t, err)
	got, _ := c.Get("block_a")
	assert.Equal(t, []float32{7, 8}, got.Data)
	assert.Equal(t, 2, c.Writes("block_a"))
}

func TestExtraction(t *testing.T) {
	tests := []struct {
		name      string
		in        *tensor.Tensor
		wantShape []int
		wantData  []float32
	}{
		{"last position", seq(2, []float32{1, 2}, []float32{3, 4}, []float32{5, 6}), []int{1, 2}, []float32{5, 6}},
		{"rank 2 passes through", tensor.MustFromSlice([]float32{1, 2, 3, 4}, 2, 2), []int{2, 2}, []float32{1, 2, 3, 4}},
		{"rank 1 passes through", tensor.Vector(9, 8), []int{2}, []float32{9, 8}},
		{"rank 4 flattens", tensor.MustFromSlice([]float32{1, 2, 3, 4}, 1, 1, 2, 2), []int{4}, []float32{1, 2, 3, 4}},
		{"batch 2 flattens", tensor.MustFromSlice([]float32{1, 2, 3, 4}, 2, 1, 2), []int{4}, []float32{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newFake()
			m := New(reg)
			require.NoError(t, m.Register("final"))
			require.NoError(t, m.Enable())
			reg.Fire("final", hooks.Output{Primary: tt.in})
			require.NoError(t, m.Disable())
			c, err := m.Collect()
			require.NoError(t, err)

			got, ok := c.Get("final")
			require.True(t, ok)
			assert.Equal(t, tt.wantShape, got.Shape)
			assert.Equal(t, tt.wantData, got.Data)
		})
	}
}

func TestCompositeUsesPrimary(t *testing.T) {
	reg := newFake()
	m := New(reg)
	require.NoError(t, m.Register("block_b"))
	require.NoError(t, m.Enable())
	reg.Fire("block_b", hooks.Output{
		Primary: seq(2, []float32{1, 2}),
		Extra:   []*tensor.Tensor{tensor.New(1, 2, 1, 1)},
	})
	require.NoError(t, m.Disable())
	c, err := m.Collect()
	require.NoError(t, err)
	got, _ := c.Get("block_b")
	assert.Equal(t, []int{1, 2}, got.Shape)
}

func TestTeardown(t *testing.T) {
	reg := newFake()
	m := New(reg)
	require.NoError(t, m.Register("embed"))
	require.NoError(t, m.Register("final"))
	require.NoError(t, m.Enable())

	require.NoError(t, m.Teardown())
	assert.Equal(t, 0, reg.HookCount())
	assert.Equal(t, Closed, m.State())

	assert.True(t, errors.Is(m.Teardown(), faults.ErrState))
	assert.True(t, errors.Is(m.Enable(), faults.ErrState))
	assert.True(t, errors.Is(m.Register("embed"), faults.ErrConfiguration))
}

func TestCaptureFromModel(t *testing.T) {
	cfg := model.Config{VocabSize: 16, ContextWindow: 8, Dim: 8, Heads: 2, Layers: 2, HiddenDim: 16, Eps: 1e-5}
	md, err := model.New(cfg, 1)
	require.NoError(t, err)

	m := New(md)
	for _, s := range []string{"input_embeds", "layer_0_attn", "layer_1_mlp_fc", "final_layer"} {
		require.NoError(t, m.Register(s))
	}
	defer func() { _ = m.Teardown() }()

	require.NoError(t, m.Enable())
	_, err = md.Forward(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, m.Disable())

	c, err := m.Collect()
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())

	att, _ := c.Get("layer_0_attn")
	assert.Equal(t, []int{1, 8}, att.Shape)
	fc, _ := c.Get("layer_1_mlp_fc")
	assert.Equal(t, []int{1, 16}, fc.Shape)
}
