package parquetio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Manifest statuses.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Manifest records what an export produced, for downstream loaders and for
// cleanup after a failed run.
type Manifest struct {
	RunID      string        `json:"run_id"`
	Job        string        `json:"job"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Rows       int64         `json:"rows"`
	Bytes      int64         `json:"bytes"`
	Columns    []string      `json:"columns"`
	Segments   []SegmentInfo `json:"segments"`
}

// ManifestPath returns {root}.manifest.json for an output path.
func ManifestPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".manifest.json"
}

// WriteManifest writes m next to the output, replacing any previous manifest
// atomically.
func WriteManifest(output string, m Manifest) (string, error) {
	path := ManifestPath(output)
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode manifest")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return "", errors.Wrap(err, "write manifest")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "install manifest")
	}
	return path, nil
}

// ReadManifest loads the manifest of an output path.
func ReadManifest(output string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(ManifestPath(output))
	if err != nil {
		return m, errors.Wrap(err, "read manifest")
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, errors.Wrap(err, "decode manifest")
	}
	return m, nil
}
