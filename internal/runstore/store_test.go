package runstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/run"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

func sampleRun() *run.Run {
	r := run.New("tiny", []string{"final_layer", "layer_0_attn"})
	exs := []run.Example{
		{ID: "0", Text: "what a day", Label: "joy", TokenLength: 3, Generated: "what a day!"},
		{ID: "1", Text: "so tired", Label: "sadness", TokenLength: 2, Generated: "so tired."},
	}
	for i, ex := range exs {
		r.Metadata.Append(ex)
		r.Append("final_layer", run.Sample{
			Tensor:    tensor.MustFromSlice([]float32{float32(i), 1, 2, 3}, 1, 4),
			Label:     ex.Label,
			ExampleID: ex.ID,
		})
	}
	// composite output flattened to rank 1
	r.Append("layer_0_attn", run.Sample{Tensor: tensor.Vector(0.5, 0.25, -1), Label: "joy", ExampleID: "0"})
	r.Skipped = []run.Skip{{Index: 2, ExampleID: "2", Reason: "forward failed"}}
	return r
}

func TestSaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	orig := sampleRun()
	require.NoError(t, Save(dir, orig))

	for _, name := range []string{"final_layer" + ComponentSuffix, "layer_0_attn" + ComponentSuffix, MetadataFile, SamplesFile, ManifestFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Model, got.Model)
	assert.Equal(t, orig.Components, got.Components)
	assert.Equal(t, orig.Metadata, got.Metadata)
	assert.Equal(t, orig.Skipped, got.Skipped)
	assert.True(t, orig.Created.Equal(got.Created))

	require.Len(t, got.Samples["final_layer"], 2)
	s := got.Samples["final_layer"][1]
	assert.Equal(t, []int{1, 4}, s.Tensor.Shape)
	assert.Equal(t, []float32{1, 1, 2, 3}, s.Tensor.Data)
	assert.Equal(t, "sadness", s.Label)
	assert.Equal(t, "1", s.ExampleID)

	attn := got.Samples["layer_0_attn"]
	require.Len(t, attn, 1)
	assert.Equal(t, []int{3}, attn[0].Tensor.Shape)
}

func TestSamplesMirror(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, sampleRun()))

	data, err := os.ReadFile(filepath.Join(dir, SamplesFile))
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"id": "0", "text": "what a day", "label": "joy", "generated": "what a day!"}, rows[0])
}

func TestListAndInspect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, sampleRun()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	comps, err := ListComponents(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"final_layer", "layer_0_attn"}, comps)

	infos, err := Inspect(dir)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 2, infos[0].Samples)
	assert.Equal(t, []int{1, 4}, infos[0].FirstShape)
	assert.Equal(t, 4, infos[0].Elements)
	assert.Greater(t, infos[0].SizeMB, 0.0)
}

func TestLoadWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, sampleRun()))
	require.NoError(t, os.Remove(filepath.Join(dir, ManifestFile)))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"final_layer", "layer_0_attn"}, got.Components)
	assert.Equal(t, 2, got.Metadata.Len())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, faults.ErrPersistence))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(ComponentPath(dir, "final_layer"), []byte("not arrow"), 0644))
	_, err = LoadComponent(dir, "final_layer")
	assert.True(t, errors.Is(err, faults.ErrPersistence))
}

func TestSaveRejectsInconsistentRun(t *testing.T) {
	r := sampleRun()
	r.Append("final_layer", run.Sample{Tensor: tensor.Vector(1), Label: "joy", ExampleID: "0"})
	err := Save(t.TempDir(), r)
	assert.True(t, errors.Is(err, faults.ErrState))
}
