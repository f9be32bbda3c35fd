// Package runstore persists capture runs as a directory of Arrow IPC files
// plus JSON mirrors for inspection.
package runstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/metrics"
	"github.com/23skdu/longbow-neurons/internal/run"
)

const (
	ComponentSuffix = "_activations.arrow"
	MetadataFile    = "gen_metadata.arrow"
	SamplesFile     = "samples.json"
	ManifestFile    = "manifest.json"
)

// Manifest describes a persisted run.
type Manifest struct {
	RunID      string     `json:"run_id"`
	Created    time.Time  `json:"created"`
	Model      string     `json:"model"`
	Components []string   `json:"components"`
	Examples   int        `json:"examples"`
	Skipped    []run.Skip `json:"skipped,omitempty"`
}

type sampleJSON struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Label     string `json:"label"`
	Generated string `json:"generated"`
}

func ComponentPath(dir, component string) string {
	return filepath.Join(dir, component+ComponentSuffix)
}

// Save writes r under dir, creating it if needed.
func Save(dir string, r *run.Run) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return faults.Persistence("save", "create run directory").With("dir", dir).Wrap(err)
	}
	log := logger.Log.With("run", r.ID)
	mem := memory.NewGoAllocator()

	for _, c := range r.Components {
		rec := buildSamples(mem, r.Samples[c])
		n, err := writeRecord(ComponentPath(dir, c), rec)
		rec.Release()
		if err != nil {
			return err
		}
		metrics.RecordBytesWritten(c+ComponentSuffix, n)
		log.Debug("Saved component", "component", c, "samples", len(r.Samples[c]), "bytes", n)
	}

	rec := buildMetadata(mem, &r.Metadata)
	n, err := writeRecord(filepath.Join(dir, MetadataFile), rec)
	rec.Release()
	if err != nil {
		return err
	}
	metrics.RecordBytesWritten(MetadataFile, n)

	mirror := make([]sampleJSON, r.Metadata.Len())
	for i := range mirror {
		ex := r.Metadata.Example(i)
		mirror[i] = sampleJSON{ID: ex.ID, Text: ex.Text, Label: ex.Label, Generated: ex.Generated}
	}
	if err := writeJSON(filepath.Join(dir, SamplesFile), mirror); err != nil {
		return err
	}

	m := Manifest{
		RunID:      r.ID,
		Created:    r.Created,
		Model:      r.Model,
		Components: r.Components,
		Examples:   r.Metadata.Len(),
		Skipped:    r.Skipped,
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), m); err != nil {
		return err
	}
	log.Info("Run saved", "dir", dir, "components", len(r.Components), "examples", m.Examples)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return faults.Persistence("save", "encode json").With("path", path).Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return faults.Persistence("save", "write json").With("path", path).Wrap(err)
	}
	metrics.RecordBytesWritten(filepath.Base(path), int64(len(data)))
	return nil
}

// ReadManifest loads dir's manifest. Runs written without one get a
// manifest derived from the component files present.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		comps, lerr := ListComponents(dir)
		if lerr != nil {
			return nil, lerr
		}
		return &Manifest{Components: comps}, nil
	}
	if err != nil {
		return nil, faults.Persistence("load", "read manifest").With("path", path).Wrap(err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, faults.Persistence("load", "decode manifest").With("path", path).Wrap(err)
	}
	return &m, nil
}

// ListComponents returns the components stored in dir, sorted by name.
func ListComponents(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, faults.Persistence("list", "read run directory").With("dir", dir).Wrap(err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ComponentSuffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ComponentSuffix))
	}
	sort.Strings(out)
	return out, nil
}

// LoadComponent reads one component's samples in stored order.
func LoadComponent(dir, component string) ([]run.Sample, error) {
	var out []run.Sample
	err := readRecords(ComponentPath(dir, component), sampleSchema, func(rec arrow.Record) error {
		s, err := decodeSamples(rec)
		if err != nil {
			return err
		}
		out = append(out, s...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Load reads a whole run back from dir.
func Load(dir string) (*run.Run, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	r := &run.Run{
		ID:         m.RunID,
		Created:    m.Created,
		Model:      m.Model,
		Components: m.Components,
		Samples:    make(map[string][]run.Sample, len(m.Components)),
		Skipped:    m.Skipped,
	}
	err = readRecords(filepath.Join(dir, MetadataFile), metadataSchema, func(rec arrow.Record) error {
		decodeMetadata(rec, &r.Metadata)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range m.Components {
		s, err := LoadComponent(dir, c)
		if err != nil {
			return nil, err
		}
		r.Samples[c] = s
	}
	if err := r.Validate(); err != nil {
		return nil, faults.Persistence("load", "inconsistent run").With("dir", dir).Wrap(err)
	}
	return r, nil
}

// ComponentInfo summarises one stored component.
type ComponentInfo struct {
	Component  string  `json:"component"`
	Samples    int     `json:"samples"`
	FirstShape []int   `json:"first_shape,omitempty"`
	Elements   int     `json:"elements"`
	SizeMB     float64 `json:"size_mb"`
}

// Inspect reports per-component sample counts and shapes for dir.
func Inspect(dir string) ([]ComponentInfo, error) {
	comps, err := ListComponents(dir)
	if err != nil {
		return nil, err
	}
	out := make([]ComponentInfo, 0, len(comps))
	for _, c := range comps {
		samples, err := LoadComponent(dir, c)
		if err != nil {
			return nil, err
		}
		info := ComponentInfo{Component: c, Samples: len(samples)}
		if len(samples) > 0 {
			info.FirstShape = append([]int(nil), samples[0].Tensor.Shape...)
			info.Elements = samples[0].Tensor.Numel()
		}
		if st, err := os.Stat(ComponentPath(dir, c)); err == nil {
			info.SizeMB = float64(st.Size()) / (1024 * 1024)
		}
		out = append(out, info)
	}
	return out, nil
}
