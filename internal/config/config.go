// Package config loads the capture and analysis settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/23skdu/longbow-neurons/internal/faults"
)

type FailurePolicy string

const (
	FailAbort FailurePolicy = "abort"
	FailSkip  FailurePolicy = "skip"
)

type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Capture  CaptureConfig  `yaml:"capture"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

type ModelConfig struct {
	Path string `yaml:"path"` // GGUF checkpoint; empty means a seeded reference model
	Seed int64  `yaml:"seed"`
}

type DatasetConfig struct {
	Path               string   `yaml:"path"`
	Categories         []string `yaml:"categories"`
	SamplesPerCategory int      `yaml:"samples_per_category"`
	MaxExamples        int      `yaml:"max_examples"` // 0 = no cap
	Seed               int64    `yaml:"seed"`
}

type CaptureConfig struct {
	Components    []string      `yaml:"components"` // empty = every site
	Temperature   float64       `yaml:"temperature"`
	Seed          int64         `yaml:"seed"`
	FailurePolicy FailurePolicy `yaml:"failure_policy"`
	ProgressEvery int           `yaml:"progress_every"`
	MetricsAddr   string        `yaml:"metrics_addr"`
}

type AnalysisConfig struct {
	TopK          int      `yaml:"top_k"`
	HeatmapWidth  int      `yaml:"heatmap_width"`
	KeyComponents []string `yaml:"key_components"` // empty = derived from the run
	Parallelism   int      `yaml:"parallelism"`
}

type OutputConfig struct {
	Dir         string `yaml:"dir"`
	ResultsDB   string `yaml:"results_db"`
	FlightAddr  string `yaml:"flight_addr"`
	FlightTable string `yaml:"flight_table"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Model: ModelConfig{Seed: 42},
		Dataset: DatasetConfig{
			Categories:         []string{"sadness", "joy", "love", "anger", "fear", "surprise"},
			SamplesPerCategory: 50,
			Seed:               42,
		},
		Capture: CaptureConfig{
			Temperature:   0.8,
			Seed:          42,
			FailurePolicy: FailAbort,
			ProgressEvery: 20,
		},
		Analysis: AnalysisConfig{
			TopK:         20,
			HeatmapWidth: 50,
			Parallelism:  4,
		},
		Output: OutputConfig{
			Dir:         "activations",
			ResultsDB:   "results.db",
			FlightTable: "neuron_features",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, faults.Configuration("load", "read config").With("path", path).Wrap(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, faults.Configuration("load", "parse config").With("path", path).Wrap(err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch c.Capture.FailurePolicy {
	case FailAbort, FailSkip:
	default:
		return faults.Configuration("validate", "invalid failure_policy: %q (must be abort or skip)", c.Capture.FailurePolicy)
	}
	if c.Capture.Temperature <= 0 {
		return faults.Configuration("validate", "invalid temperature: %v (must be positive)", c.Capture.Temperature)
	}
	if c.Capture.ProgressEvery < 0 {
		return faults.Configuration("validate", "invalid progress_every: %d (must be non-negative)", c.Capture.ProgressEvery)
	}
	if c.Dataset.SamplesPerCategory < 0 {
		return faults.Configuration("validate", "invalid samples_per_category: %d (must be non-negative)", c.Dataset.SamplesPerCategory)
	}
	if c.Dataset.MaxExamples < 0 {
		return faults.Configuration("validate", "invalid max_examples: %d (must be non-negative)", c.Dataset.MaxExamples)
	}
	if c.Analysis.TopK <= 0 {
		return faults.Configuration("validate", "invalid top_k: %d (must be positive)", c.Analysis.TopK)
	}
	if c.Analysis.HeatmapWidth <= 0 {
		return faults.Configuration("validate", "invalid heatmap_width: %d (must be positive)", c.Analysis.HeatmapWidth)
	}
	if c.Analysis.Parallelism <= 0 {
		return faults.Configuration("validate", "invalid parallelism: %d (must be positive)", c.Analysis.Parallelism)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return faults.Configuration("validate", "output dir is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return faults.Configuration("validate", "invalid log format: %q (must be console or json)", c.Log.Format)
	}
	return nil
}

// ResultsPath resolves the results database relative to the output dir.
func (c *Config) ResultsPath() string {
	if c.Output.ResultsDB == "" || filepath.IsAbs(c.Output.ResultsDB) {
		return c.Output.ResultsDB
	}
	return filepath.Join(c.Output.Dir, c.Output.ResultsDB)
}
