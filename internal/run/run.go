// Package run holds the capture run data model: examples, per-component
// samples and the parallel metadata table.
package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

// Example is one labelled input.
type Example struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Label       string `json:"label"`
	TokenLength int    `json:"token_length"`
	Generated   string `json:"generated,omitempty"`
}

// Sample is one captured tensor for an (example, component) pair.
type Sample struct {
	Tensor    *tensor.Tensor
	Label     string
	ExampleID string
}

// Skip records an example dropped under the skip failure policy.
type Skip struct {
	Index     int    `json:"index"`
	ExampleID string `json:"example_id"`
	Reason    string `json:"reason"`
}

// Metadata is a column-oriented table keyed by processing order.
type Metadata struct {
	ExampleIDs    []string
	RawInputs     []string
	Labels        []string
	GeneratedText []string
	TokenLengths  []int
}

func (m *Metadata) Len() int {
	return len(m.ExampleIDs)
}

func (m *Metadata) Append(ex Example) {
	m.ExampleIDs = append(m.ExampleIDs, ex.ID)
	m.RawInputs = append(m.RawInputs, ex.Text)
	m.Labels = append(m.Labels, ex.Label)
	m.GeneratedText = append(m.GeneratedText, ex.Generated)
	m.TokenLengths = append(m.TokenLengths, ex.TokenLength)
}

// Example reconstructs row i.
func (m *Metadata) Example(i int) Example {
	return Example{
		ID:          m.ExampleIDs[i],
		Text:        m.RawInputs[i],
		Label:       m.Labels[i],
		Generated:   m.GeneratedText[i],
		TokenLength: m.TokenLengths[i],
	}
}

type Run struct {
	ID         string
	Created    time.Time
	Model      string
	Components []string
	Samples    map[string][]Sample
	Metadata   Metadata
	Skipped    []Skip
}

func New(model string, components []string) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Created:    time.Now().UTC(),
		Model:      model,
		Components: append([]string(nil), components...),
		Samples:    make(map[string][]Sample, len(components)),
	}
}

func (r *Run) Append(component string, s Sample) {
	r.Samples[component] = append(r.Samples[component], s)
}

// Categories returns the distinct labels in first-seen order.
func (r *Run) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range r.Metadata.Labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// Validate checks the metadata table is rectangular, each component holds
// at most one sample per example, and samples agree on labels.
func (r *Run) Validate() error {
	md := &r.Metadata
	n := md.Len()
	if len(md.RawInputs) != n || len(md.Labels) != n || len(md.GeneratedText) != n || len(md.TokenLengths) != n {
		return faults.State("validate", "metadata columns have different lengths")
	}

	labelOf := make(map[string]string, n)
	for i, id := range md.ExampleIDs {
		if _, dup := labelOf[id]; dup {
			return faults.State("validate", "duplicate example id %q", id)
		}
		labelOf[id] = md.Labels[i]
	}

	known := make(map[string]bool, len(r.Components))
	for _, c := range r.Components {
		known[c] = true
	}
	for comp, samples := range r.Samples {
		if !known[comp] {
			return faults.State("validate", "samples for unregistered component %q", comp)
		}
		seen := make(map[string]bool, len(samples))
		for _, s := range samples {
			if seen[s.ExampleID] {
				return faults.State("validate", "component %s has two samples for example %q", comp, s.ExampleID)
			}
			seen[s.ExampleID] = true
			label, ok := labelOf[s.ExampleID]
			if !ok {
				return faults.State("validate", "component %s has a sample for unknown example %q", comp, s.ExampleID)
			}
			if label != s.Label {
				return faults.State("validate", "example %q labelled %q in metadata but %q in %s", s.ExampleID, label, s.Label, comp)
			}
		}
	}
	return nil
}
