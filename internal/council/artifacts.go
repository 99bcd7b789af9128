package council

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// runDir returns the persistent directory for a run.
func runDir(repoRoot, runID string) string {
	return filepath.Join(repoRoot, ".council", "runs", runID)
}

// writeJSONArtifact marshals v and writes it to <runDir>/<name>, creating the
// run directory if needed. The artifact is always written before its
// ArtifactWritten event is emitted by the caller.
func writeJSONArtifact(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", err
	}
	return path, nil
}

// writeTextArtifact writes raw text content to <dir>/<name>.
func writeTextArtifact(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return "", err
	}
	return path, nil
}
