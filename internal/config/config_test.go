package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/23skdu/longbow-neurons/internal/faults"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Capture.Temperature != 0.8 {
		t.Errorf("expected Temperature 0.8, got %v", cfg.Capture.Temperature)
	}
	if cfg.Capture.FailurePolicy != FailAbort {
		t.Errorf("expected FailurePolicy abort, got %q", cfg.Capture.FailurePolicy)
	}
	if cfg.Capture.ProgressEvery != 20 {
		t.Errorf("expected ProgressEvery 20, got %d", cfg.Capture.ProgressEvery)
	}
	if cfg.Analysis.TopK != 20 {
		t.Errorf("expected TopK 20, got %d", cfg.Analysis.TopK)
	}
	if cfg.Analysis.HeatmapWidth != 50 {
		t.Errorf("expected HeatmapWidth 50, got %d", cfg.Analysis.HeatmapWidth)
	}
	if cfg.Dataset.Seed != 42 {
		t.Errorf("expected dataset seed 42, got %d", cfg.Dataset.Seed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"skip policy", func(c *Config) { c.Capture.FailurePolicy = FailSkip }, false},
		{"unknown policy", func(c *Config) { c.Capture.FailurePolicy = "retry" }, true},
		{"zero temperature", func(c *Config) { c.Capture.Temperature = 0 }, true},
		{"negative progress", func(c *Config) { c.Capture.ProgressEvery = -1 }, true},
		{"zero top k", func(c *Config) { c.Analysis.TopK = 0 }, true},
		{"zero heatmap", func(c *Config) { c.Analysis.HeatmapWidth = 0 }, true},
		{"zero parallelism", func(c *Config) { c.Analysis.Parallelism = 0 }, true},
		{"missing output dir", func(c *Config) { c.Output.Dir = " " }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"negative max examples", func(c *Config) { c.Dataset.MaxExamples = -3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, faults.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neurons.yaml")
	body := `
capture:
  failure_policy: skip
  components: [final_layer, layer_11_output]
analysis:
  top_k: 5
output:
  dir: /tmp/run
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.FailurePolicy != FailSkip {
		t.Errorf("expected skip, got %q", cfg.Capture.FailurePolicy)
	}
	if len(cfg.Capture.Components) != 2 {
		t.Errorf("expected 2 components, got %v", cfg.Capture.Components)
	}
	if cfg.Analysis.TopK != 5 {
		t.Errorf("expected TopK 5, got %d", cfg.Analysis.TopK)
	}
	if cfg.Capture.Temperature != 0.8 {
		t.Errorf("expected default temperature kept, got %v", cfg.Capture.Temperature)
	}
	if got := cfg.ResultsPath(); got != "/tmp/run/results.db" {
		t.Errorf("expected results path under output dir, got %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got %v", err)
	}
	if cfg.Analysis.TopK != 20 {
		t.Errorf("expected default TopK, got %d", cfg.Analysis.TopK)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("capture: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "neurons.yaml")
	cfg := Default()
	cfg.Dataset.Categories = []string{"joy", "sad"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Dataset.Categories) != 2 || loaded.Dataset.Categories[1] != "sad" {
		t.Errorf("expected categories [joy sad], got %v", loaded.Dataset.Categories)
	}
}
