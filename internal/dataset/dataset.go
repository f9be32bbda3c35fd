// Package dataset loads labelled text examples and draws balanced,
// reproducible subsets of them.
package dataset

import (
	"encoding/json"
	"math/rand"
	"os"
	"strconv"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/run"
)

// Record is one labelled example as stored on disk.
type Record struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Options controls subset selection. Zero values disable the step.
type Options struct {
	Categories         []string
	SamplesPerCategory int
	MaxExamples        int
	Seed               int64
}

// Load reads a JSON array of {"text","label"} records.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Persistence("load", "read dataset").With("path", path).Wrap(err)
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, faults.Persistence("load", "decode dataset").With("path", path).Wrap(err)
	}
	return recs, nil
}

// Filter keeps records whose label is in categories. Requested categories
// absent from the data are logged.
func Filter(recs []Record, categories []string) []Record {
	if len(categories) == 0 {
		return recs
	}
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	found := make(map[string]bool)
	var out []Record
	for _, r := range recs {
		if want[r.Label] {
			found[r.Label] = true
			out = append(out, r)
		}
	}
	for _, c := range categories {
		if !found[c] {
			logger.Log.Warn("Requested category not found in dataset", "category", c)
		}
	}
	return out
}

// Balance draws up to perCategory records of each label without replacement
// and shuffles the result. The same seed always yields the same subset.
func Balance(recs []Record, perCategory int, seed int64) []Record {
	var order []string
	groups := make(map[string][]Record)
	for _, r := range recs {
		if _, ok := groups[r.Label]; !ok {
			order = append(order, r.Label)
		}
		groups[r.Label] = append(groups[r.Label], r)
	}

	rng := rand.New(rand.NewSource(seed))
	var out []Record
	for _, label := range order {
		g := groups[label]
		n := perCategory
		if n <= 0 || n > len(g) {
			n = len(g)
		}
		logger.Log.Debug("Sampling category", "category", label, "available", len(g), "taken", n)
		for _, idx := range rng.Perm(len(g))[:n] {
			out = append(out, g[idx])
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Examples converts records to run examples with positional ids, capped at
// limit when limit > 0.
func Examples(recs []Record, limit int) []run.Example {
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]run.Example, len(recs))
	for i, r := range recs {
		out[i] = run.Example{ID: strconv.Itoa(i), Text: r.Text, Label: r.Label}
	}
	return out
}

// Select applies Filter, Balance and the examples cap in order.
func Select(recs []Record, opts Options) []run.Example {
	recs = Filter(recs, opts.Categories)
	if opts.SamplesPerCategory > 0 {
		recs = Balance(recs, opts.SamplesPerCategory, opts.Seed)
	}
	return Examples(recs, opts.MaxExamples)
}

// LoadExamples reads path and selects examples from it.
func LoadExamples(path string, opts Options) ([]run.Example, error) {
	recs, err := Load(path)
	if err != nil {
		return nil, err
	}
	exs := Select(recs, opts)
	logger.Log.Info("Dataset loaded", "path", path, "records", len(recs), "examples", len(exs))
	return exs, nil
}

// Save writes records as an indented JSON array.
func Save(path string, recs []Record) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return faults.Persistence("save", "encode dataset").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return faults.Persistence("save", "write dataset").With("path", path).Wrap(err)
	}
	return nil
}
