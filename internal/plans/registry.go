package plans

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/droverhq/drover/internal/registry"
)

// registryFile is the plan registry's file name inside the state directory.
const registryFile = ".session-plans.json"

// Registry is the plan lifecycle registry rooted at a state directory.
// All persistence goes through the registry store: reads fail soft, writes
// are atomic, and read-modify-write sequences are last-writer-wins across
// processes.
type Registry struct {
	dir    string
	keyLen int
}

// New returns a Registry rooted at dir. A non-positive keyLen falls back to
// DefaultKeyLength.
func New(dir string, keyLen int) *Registry {
	if keyLen <= 0 {
		keyLen = DefaultKeyLength
	}
	return &Registry{dir: dir, keyLen: keyLen}
}

// Dir returns the state directory the registry is rooted at.
func (r *Registry) Dir() string {
	return r.dir
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return filepath.Join(r.dir, registryFile)
}

// Key derives the session key for a full session identifier.
func (r *Registry) Key(sessionID string) string {
	return SessionKey(sessionID, r.keyLen)
}

// Register upserts the record for the session with status created and a
// fresh timestamp.
func (r *Registry) Register(sessionID, planName string) error {
	if planName == "" {
		return fmt.Errorf("plan name is empty")
	}
	key := r.Key(sessionID)
	return registry.Update(r.Path(), func(m map[string]Record) {
		m[key] = Record{
			Plan:      planName,
			CreatedAt: registry.Now(),
			Status:    StatusCreated,
		}
	})
}

// Lookup resolves the session's record. It returns nil when there is no
// entry, and also when the entry's backing artifact no longer exists on
// disk; in the latter case the dangling entry is removed from the registry.
func (r *Registry) Lookup(sessionID string) (*Record, error) {
	key := r.Key(sessionID)

	m, err := registry.Load[Record](r.Path())
	if err != nil {
		return nil, err
	}
	rec, ok := m[key]
	if !ok {
		return nil, nil
	}

	if !r.ArtifactExists(rec.Plan) {
		// Dangling reference: the artifact was deleted out from under the
		// registry. Treat as absent and heal the entry away.
		delete(m, key)
		if err := registry.Save(r.Path(), m); err != nil {
			return nil, fmt.Errorf("failed to remove dangling plan entry: %w", err)
		}
		return nil, nil
	}

	return &rec, nil
}

// UpdateStatus merges a new status into the session's record. A missing
// entry is a no-op, not an error.
func (r *Registry) UpdateStatus(sessionID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown plan status %q", status)
	}
	key := r.Key(sessionID)
	return registry.Update(r.Path(), func(m map[string]Record) {
		rec, ok := m[key]
		if !ok {
			return
		}
		rec.Status = status
		m[key] = rec
	})
}

// List returns every registry entry, newest first, with a staleness flag
// computed from the backing artifact's existence.
func (r *Registry) List() ([]Entry, error) {
	m, err := registry.Load[Record](r.Path())
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(m))
	for key, rec := range m {
		entries = append(entries, Entry{
			Key:    key,
			Record: rec,
			Stale:  !r.ArtifactExists(rec.Plan),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].Record.CreatedAt, entries[j].Record.CreatedAt
		if ti.Equal(tj.Time) {
			return entries[i].Key < entries[j].Key
		}
		return ti.After(tj.Time)
	})
	return entries, nil
}

// Clear drops the whole registry file. With removeArtifacts set it also
// deletes every plan artifact in the state directory.
func (r *Registry) Clear(removeArtifacts bool) error {
	if err := os.Remove(r.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove plan registry: %w", err)
	}
	if !removeArtifacts {
		return nil
	}
	for _, name := range r.ListArtifacts() {
		if err := os.Remove(r.ArtifactPath(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove plan artifact %s: %w", name, err)
		}
	}
	return nil
}
