// Package swarm persists batch-dispatch state. A swarm is one batch of
// delegated tasks; each task tracks a single worker through pending,
// running, and exactly one terminal state. Records live in a JSON registry
// under the state directory and survive process restarts.
package swarm

import (
	"github.com/google/uuid"

	"github.com/droverhq/drover/internal/registry"
	"github.com/droverhq/drover/internal/verdict"
)

// TaskStatus is the state of one delegated task.
type TaskStatus string

const (
	// TaskPending indicates the task has not started yet.
	TaskPending TaskStatus = "pending"

	// TaskRunning indicates a worker session is executing the task.
	TaskRunning TaskStatus = "running"

	// TaskCompleted indicates the worker finished with a successful verdict.
	TaskCompleted TaskStatus = "completed"

	// TaskFailed indicates the worker failed or its output was unusable.
	TaskFailed TaskStatus = "failed"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state. Terminal
// tasks are never reopened; later updates are ignored.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Status is the aggregate rollup of a swarm. It is always derived from the
// task statuses, never stored stale.
type Status string

const (
	// StatusRunning indicates at least one task is not yet terminal.
	StatusRunning Status = "running"

	// StatusCompleted indicates every task completed.
	StatusCompleted Status = "completed"

	// StatusFailed indicates every task failed.
	StatusFailed Status = "failed"

	// StatusPartial indicates a mix of completed and failed tasks.
	StatusPartial Status = "partial"
)

// String returns the string representation of the swarm status.
func (s Status) String() string {
	return string(s)
}

// TaskRecord is one delegated unit of work inside a swarm.
type TaskRecord struct {
	// ID is unique within the owning swarm.
	ID string `json:"taskId"`

	// Agent is the worker persona the task is delegated to.
	Agent string `json:"agent"`

	// Prompt is what the worker is asked to do (a free-form instruction or
	// a plan reference).
	Prompt string `json:"prompt,omitempty"`

	// Status is the task's position in its lifecycle.
	Status TaskStatus `json:"status"`

	// SessionID is the worker session executing the task, set once when the
	// task transitions to running.
	SessionID string `json:"sessionId,omitempty"`

	// Result is the extracted verdict, set once when the task reaches a
	// terminal state. It holds either a structured outcome or the raw text
	// plus a diagnostic.
	Result *verdict.Result `json:"result,omitempty"`
}

// Record is one entry per batch dispatch. Tasks are fixed at creation; only
// per-task status, session, and result fields mutate afterwards.
type Record struct {
	// ID uniquely identifies the batch.
	ID string `json:"swarmId"`

	// CreatedAt is the dispatch time.
	CreatedAt registry.Time `json:"createdAt"`

	// CompletedAt is set exactly once, when the swarm first leaves running.
	CompletedAt *registry.Time `json:"completedAt,omitempty"`

	// Status is the derived rollup of the task statuses.
	Status Status `json:"status"`

	// TaskCount is the number of tasks at creation.
	TaskCount int `json:"taskCount"`

	// WorktreesEnabled records whether tasks execute in isolated
	// filesystem copies.
	WorktreesEnabled bool `json:"worktreesEnabled"`

	// Tasks is the ordered task list.
	Tasks []TaskRecord `json:"tasks"`
}

// Summary is a count rollup for reporting.
type Summary struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Total     int `json:"total"`
}

// NewRecord builds a running swarm record with a fresh identifier. Every
// task starts pending.
func NewRecord(tasks []TaskRecord, worktrees bool) Record {
	for i := range tasks {
		if tasks[i].Status == "" {
			tasks[i].Status = TaskPending
		}
	}
	return Record{
		ID:               uuid.NewString(),
		CreatedAt:        registry.Now(),
		Status:           DeriveStatus(tasks),
		TaskCount:        len(tasks),
		WorktreesEnabled: worktrees,
		Tasks:            tasks,
	}
}

// DeriveStatus rolls task statuses up into a swarm status: running while any
// task is non-terminal, then completed or failed when the tasks are
// unanimous, partial otherwise.
func DeriveStatus(tasks []TaskRecord) Status {
	completed, failed := 0, 0
	for _, t := range tasks {
		switch {
		case !t.Status.IsTerminal():
			return StatusRunning
		case t.Status == TaskCompleted:
			completed++
		default:
			failed++
		}
	}
	if failed == 0 {
		return StatusCompleted
	}
	if completed == 0 {
		return StatusFailed
	}
	return StatusPartial
}

// IsComplete reports whether every task in the record is terminal.
func IsComplete(rec Record) bool {
	for _, t := range rec.Tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Summarize counts the record's tasks by bucket. Non-terminal tasks
// (pending or running) count as pending.
func Summarize(rec Record) Summary {
	s := Summary{Total: len(rec.Tasks)}
	for _, t := range rec.Tasks {
		switch t.Status {
		case TaskCompleted:
			s.Completed++
		case TaskFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}
