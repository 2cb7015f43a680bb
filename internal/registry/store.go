// Package registry provides crash-safe JSON persistence for the on-disk
// registries. Each registry is a single file holding one JSON object that
// maps string keys to records. Writes go through a temp-file-then-rename
// sequence so readers never observe a partially written file; reads are
// fail-soft so a damaged registry degrades to empty instead of taking the
// caller down.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads the registry file at path and decodes it into a typed map.
// A missing file, an unreadable file, malformed JSON, or a top-level value
// that is not an object all yield an empty map and a nil error. The only
// error case is programmer misuse (empty path).
func Load[T any](path string) (map[string]T, error) {
	if path == "" {
		return nil, fmt.Errorf("registry path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Missing or unreadable registry reads as empty.
		return map[string]T{}, nil
	}

	var m map[string]T
	if err := json.Unmarshal(data, &m); err != nil {
		// Corrupt registry reads as empty rather than failing the caller.
		return map[string]T{}, nil
	}
	if m == nil {
		m = map[string]T{}
	}
	return m, nil
}

// Save encodes the map as indented JSON and writes it atomically, creating
// the parent directory if needed. Write failures propagate: losing a durable
// write is an error, unlike the fail-soft read path.
func Save[T any](path string, m map[string]T) error {
	if path == "" {
		return fmt.Errorf("registry path is empty")
	}
	if m == nil {
		m = map[string]T{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	return atomicWriteFile(path, data, 0644)
}

// Update loads the registry, applies fn to the map in place, and saves the
// result. The read-modify-write sequence holds no cross-process lock: when
// two processes race, the last rename wins. The rename only guarantees that
// readers never see a torn file.
func Update[T any](path string, fn func(map[string]T)) error {
	m, err := Load[T](path)
	if err != nil {
		return err
	}
	fn(m)
	return Save(path, m)
}

// atomicWriteFile writes data to path by writing a temporary file in the
// same directory and renaming it into place, so the target is never left in
// a partially written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	// Temp file must live in the same directory for the rename to be atomic.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	renamed = true
	return nil
}
