package plans

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/droverhq/drover/internal/registry"
)

const (
	artifactPrefix = "plan-"
	artifactExt    = ".md"
)

// ArtifactPath returns the path of the artifact backing a plan name.
func (r *Registry) ArtifactPath(name string) string {
	return filepath.Join(r.dir, artifactPrefix+name+artifactExt)
}

// ArtifactExists reports whether the plan's backing artifact is on disk.
func (r *Registry) ArtifactExists(name string) bool {
	if name == "" {
		return false
	}
	info, err := os.Stat(r.ArtifactPath(name))
	return err == nil && !info.IsDir()
}

// ListArtifacts returns the names of every plan artifact in the state
// directory, sorted. A missing or unreadable directory reads as empty.
func (r *Registry) ListArtifacts() []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := artifactName(e.Name()); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FindClosest resolves a partial plan name against the artifacts on disk
// using a two-tier, case-insensitive strategy: prefix match first, then
// substring containment, each tier accepted only on exactly one hit.
// Ambiguity at both tiers yields a nil resolution plus the candidate list;
// the resolver never guesses between candidates. A successful resolution
// carries the newest registry entry referencing the plan, when one exists.
func (r *Registry) FindClosest(partial string) (*Resolution, []string, error) {
	p := strings.ToLower(strings.TrimSpace(partial))
	if p == "" {
		return nil, nil, nil
	}

	names := r.ListArtifacts()

	var hits []string
	for _, n := range names {
		if strings.HasPrefix(strings.ToLower(n), p) {
			hits = append(hits, n)
		}
	}
	if len(hits) != 1 {
		var subs []string
		for _, n := range names {
			if strings.Contains(strings.ToLower(n), p) {
				subs = append(subs, n)
			}
		}
		if len(subs) != 1 {
			return nil, subs, nil
		}
		hits = subs
	}

	name := hits[0]
	res := &Resolution{Plan: name, Path: r.ArtifactPath(name)}

	m, err := registry.Load[Record](r.Path())
	if err != nil {
		return nil, nil, err
	}
	for key, rec := range m {
		if rec.Plan != name {
			continue
		}
		if res.Record == nil || rec.CreatedAt.After(res.Record.CreatedAt.Time) {
			entry := rec
			res.Key = key
			res.Record = &entry
		}
	}
	return res, nil, nil
}

// IsArtifactPath reports whether path names a plan artifact inside the
// given state directory, returning the plan name when it does. The check
// compares the path's parent directory by base name so absolute and
// relative spellings of the state directory both match.
func IsArtifactPath(stateDir, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	name, ok := artifactName(filepath.Base(path))
	if !ok {
		return "", false
	}
	parent := filepath.Base(filepath.Dir(filepath.Clean(path)))
	if parent != filepath.Base(filepath.Clean(stateDir)) {
		return "", false
	}
	return name, true
}

func artifactName(base string) (string, bool) {
	if !strings.HasPrefix(base, artifactPrefix) || !strings.HasSuffix(base, artifactExt) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(base, artifactPrefix), artifactExt)
	if name == "" {
		return "", false
	}
	return name, true
}
