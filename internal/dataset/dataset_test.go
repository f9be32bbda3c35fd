package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-neurons/internal/faults"
)

func corpus() []Record {
	var recs []Record
	for i := 0; i < 10; i++ {
		recs = append(recs, Record{Text: fmt.Sprintf("happy %d", i), Label: "joy"})
		recs = append(recs, Record{Text: fmt.Sprintf("sad %d", i), Label: "sadness"})
	}
	recs = append(recs, Record{Text: "boo", Label: "fear"})
	return recs
}

func countLabels(recs []Record) map[string]int {
	out := make(map[string]int)
	for _, r := range recs {
		out[r.Label]++
	}
	return out
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweets.json")
	require.NoError(t, Save(path, corpus()))

	recs, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, recs, 21)
	assert.Equal(t, Record{Text: "happy 0", Label: "joy"}, recs[0])
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, errors.Is(err, faults.ErrPersistence))
}

func TestFilter(t *testing.T) {
	got := Filter(corpus(), []string{"fear", "love"})
	require.Len(t, got, 1)
	assert.Equal(t, "boo", got[0].Text)

	assert.Len(t, Filter(corpus(), nil), 21)
}

func TestBalance(t *testing.T) {
	got := Balance(corpus(), 3, 42)
	assert.Equal(t, map[string]int{"joy": 3, "sadness": 3, "fear": 1}, countLabels(got))

	again := Balance(corpus(), 3, 42)
	assert.Equal(t, got, again, "same seed gives same subset")

	seen := make(map[string]bool)
	for _, r := range got {
		assert.False(t, seen[r.Text], "sampled without replacement")
		seen[r.Text] = true
	}
}

func TestSelect(t *testing.T) {
	exs := Select(corpus(), Options{
		Categories:         []string{"joy", "sadness"},
		SamplesPerCategory: 4,
		MaxExamples:        5,
		Seed:               42,
	})
	require.Len(t, exs, 5)
	for i, ex := range exs {
		assert.Equal(t, fmt.Sprint(i), ex.ID)
		assert.Contains(t, []string{"joy", "sadness"}, ex.Label)
	}
}

func TestExamplesWithoutCap(t *testing.T) {
	exs := Examples(corpus(), 0)
	assert.Len(t, exs, 21)
	assert.Equal(t, "20", exs[20].ID)
	assert.Equal(t, "fear", exs[20].Label)
}
