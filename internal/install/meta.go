package install

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Meta records which release tag is currently installed. It is persisted as
// a small JSON sidecar next to the binary.
type Meta struct {
	Tag          string    `json:"tag"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// readMeta loads the sidecar. A missing or corrupt file yields ok=false
// rather than an error; that just means "no cache".
func readMeta(path string) (Meta, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, false
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, false
	}
	if meta.Tag == "" {
		return Meta{}, false
	}
	return meta, true
}

// writeMeta persists the sidecar via temp file + atomic rename.
func writeMeta(path string, meta Meta) error {
	buf, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "meta-*.json")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// shouldRefresh decides whether a fresh download is required. A missing
// binary forces a refresh regardless of what the sidecar claims.
func shouldRefresh(force bool, cachedTag, latestTag string, binaryExists bool) bool {
	if force {
		return true
	}
	if !binaryExists {
		return true
	}
	return cachedTag != latestTag
}
