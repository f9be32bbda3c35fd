package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSliceChecksElementCount(t *testing.T) {
	_, err := FromSlice([]float32{1, 2, 3}, 2, 2)
	assert.Error(t, err)

	tt, err := FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Rank())
	assert.Equal(t, 4, tt.Numel())
}

func TestLastPosition(t *testing.T) {
	// [1, 3, 2]: positions (1,2) (3,4) (5,6)
	x := MustFromSlice([]float32{1, 2, 3, 4, 5, 6}, 1, 3, 2)

	last, err := x.LastPosition()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, last.Shape)
	assert.Equal(t, []float32{5, 6}, last.Data)

	// copy, not view
	last.Data[0] = 100
	assert.Equal(t, float32(5), x.Data[4])
}

func TestLastPositionRejectsOtherRanks(t *testing.T) {
	_, err := Vector(1, 2).LastPosition()
	assert.Error(t, err)

	_, err = New(1, 0, 4).LastPosition()
	assert.Error(t, err)
}

func TestFlattenAndClone(t *testing.T) {
	x := MustFromSlice([]float32{1, 2, 3, 4}, 2, 2)
	f := x.Flatten()
	assert.Equal(t, []int{4}, f.Shape)

	c := x.Clone()
	c.Data[0] = 9
	assert.Equal(t, float32(1), x.Data[0])
	assert.True(t, c.SameShape(x))
	assert.False(t, f.SameShape(x))
}

func TestCountNaNInf(t *testing.T) {
	x := Vector(1, float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1)))
	nans, infs := x.CountNaNInf()
	assert.Equal(t, 1, nans)
	assert.Equal(t, 2, infs)
}
