package calibrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifacts are stored one JSON file per model under a models directory.
// Files are write-once: replacing calibration means writing a new version,
// never rewriting an existing artifact.

const artifactPrefix = "calibrator_"

// Save writes the model to dir as a new versioned artifact and returns the
// path. It refuses to overwrite an existing file.
func Save(m *Model, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create models dir: %w", err)
	}

	path := filepath.Join(dir, artifactPrefix+m.Version+".json")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create artifact (artifacts are write-once): %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	return path, nil
}

// Load reads a specific artifact.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("artifact %s has no version", path)
	}
	return &m, nil
}

// LoadLatest finds the newest artifact in dir by fitted-at time. Returns
// ErrUnavailable when the directory is missing or holds no artifacts.
func LoadLatest(dir string) (*Model, error) {
	if dir == "" {
		return nil, ErrUnavailable
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ErrUnavailable
	}

	var latest *Model
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		m, err := Load(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if latest == nil || m.FittedAt.After(latest.FittedAt) {
			latest = m
		}
	}

	if latest == nil {
		return nil, ErrUnavailable
	}
	return latest, nil
}
