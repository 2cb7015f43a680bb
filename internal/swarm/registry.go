package swarm

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/droverhq/drover/internal/registry"
	"github.com/droverhq/drover/internal/verdict"
)

// registryFile is the swarm registry's file name inside the state directory.
const registryFile = ".swarm-records.json"

// DefaultMaxRecords is the retention limit applied when none is configured.
const DefaultMaxRecords = 50

var (
	// ErrSwarmNotFound is returned when an update names an unknown swarm.
	ErrSwarmNotFound = errors.New("swarm not found")

	// ErrTaskNotFound is returned when an update names an unknown task.
	ErrTaskNotFound = errors.New("task not found")
)

// Registry is the swarm task registry rooted at a state directory.
type Registry struct {
	dir        string
	maxRecords int
}

// New returns a Registry rooted at dir. A non-positive maxRecords falls
// back to DefaultMaxRecords.
func New(dir string, maxRecords int) *Registry {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Registry{dir: dir, maxRecords: maxRecords}
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return filepath.Join(r.dir, registryFile)
}

// Put upserts a record, then prunes the oldest records beyond the retention
// limit. Pruning is a retention policy, not an error.
func (r *Registry) Put(rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("swarm record has no id")
	}
	return registry.Update(r.Path(), func(m map[string]Record) {
		m[rec.ID] = rec
		prune(m, r.maxRecords)
	})
}

// Get returns the record for id, or nil when absent.
func (r *Registry) Get(id string) (*Record, error) {
	m, err := registry.Load[Record](r.Path())
	if err != nil {
		return nil, err
	}
	rec, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// List returns every record sorted by creation time, newest first. Records
// whose timestamp failed to parse carry the zero time and sort last.
func (r *Registry) List() ([]Record, error) {
	m, err := registry.Load[Record](r.Path())
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(m))
	for _, rec := range m {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		ti, tj := recs[i].CreatedAt, recs[j].CreatedAt
		if ti.Equal(tj.Time) {
			return recs[i].ID < recs[j].ID
		}
		return ti.After(tj.Time)
	})
	return recs, nil
}

// TaskUpdate carries the mutable fields of a task record.
type TaskUpdate struct {
	Status TaskStatus

	// SessionID is recorded when non-empty; it normally accompanies the
	// transition to running.
	SessionID string

	// Result is recorded when non-nil; it normally accompanies a terminal
	// transition.
	Result *verdict.Result
}

// UpdateTask applies an update to one task and re-derives the swarm rollup.
// Updates against a task already in a terminal state are silently ignored,
// so a late or duplicate worker result cannot corrupt a resolved task.
// CompletedAt is stamped exactly once, when the swarm first leaves running.
func (r *Registry) UpdateTask(swarmID, taskID string, up TaskUpdate) error {
	path := r.Path()
	m, err := registry.Load[Record](path)
	if err != nil {
		return err
	}

	rec, ok := m[swarmID]
	if !ok {
		return fmt.Errorf("update task %s: %w", taskID, ErrSwarmNotFound)
	}

	idx := -1
	for i := range rec.Tasks {
		if rec.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("update swarm %s: %w", swarmID, ErrTaskNotFound)
	}

	task := &rec.Tasks[idx]
	if task.Status.IsTerminal() {
		// Terminal states are immutable; a late result is dropped on the
		// floor rather than surfaced as an error.
		return nil
	}

	if up.Status != "" {
		task.Status = up.Status
	}
	if up.SessionID != "" {
		task.SessionID = up.SessionID
	}
	if up.Result != nil {
		task.Result = up.Result
	}

	rec.Status = DeriveStatus(rec.Tasks)
	if rec.Status != StatusRunning && rec.CompletedAt == nil {
		now := registry.Now()
		rec.CompletedAt = &now
	}
	m[swarmID] = rec

	return registry.Save(path, m)
}

// prune drops the oldest records until at most max remain.
func prune(m map[string]Record, max int) {
	if len(m) <= max {
		return
	}
	recs := make([]Record, 0, len(m))
	for _, rec := range m {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		ti, tj := recs[i].CreatedAt, recs[j].CreatedAt
		if ti.Equal(tj.Time) {
			return recs[i].ID < recs[j].ID
		}
		return ti.Before(tj.Time)
	})
	for _, rec := range recs[:len(recs)-max] {
		delete(m, rec.ID)
	}
}
