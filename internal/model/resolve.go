package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/23skdu/longbow-neurons/internal/faults"
)

const (
	defaultTag       = "latest"
	mediaTypeWeights = "application/vnd.ollama.image.model"
)

type storeManifest struct {
	Layers []struct {
		MediaType string `json:"mediaType"`
		Digest    string `json:"digest"`
	} `json:"layers"`
}

// StoreDir is the local Ollama model store: $OLLAMA_MODELS, else
// ~/.ollama/models.
func StoreDir() (string, error) {
	if env := os.Getenv("OLLAMA_MODELS"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ollama", "models"), nil
}

// ResolvePath returns ref unchanged when it names an existing file, otherwise
// treats it as a "name[:tag]" reference into the model store under dir and
// returns the path of its weights blob.
func ResolvePath(ref, dir string) (string, error) {
	if st, err := os.Stat(ref); err == nil && !st.IsDir() {
		return ref, nil
	}
	name, tag, ok := strings.Cut(ref, ":")
	if !ok || tag == "" {
		tag = defaultTag
	}
	manifest := filepath.Join(dir, "manifests", "registry.ollama.ai", "library", name, tag)
	data, err := os.ReadFile(manifest)
	if err != nil {
		return "", faults.Configuration("resolve", "no checkpoint file or store entry for %q", ref).Wrap(err)
	}
	var m storeManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", faults.Configuration("resolve", "bad store manifest").With("path", manifest).Wrap(err)
	}
	for _, l := range m.Layers {
		if l.MediaType != mediaTypeWeights {
			continue
		}
		blob := filepath.Join(dir, "blobs", strings.Replace(l.Digest, ":", "-", 1))
		if _, err := os.Stat(blob); err != nil {
			return "", faults.Configuration("resolve", "weights blob missing").With("path", blob).Wrap(err)
		}
		return blob, nil
	}
	return "", faults.Configuration("resolve", "store manifest for %q has no weights layer", ref).With("path", manifest)
}
