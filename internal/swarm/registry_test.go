package swarm

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/registry"
	"github.com/droverhq/drover/internal/verdict"
)

func twoTaskRecord() Record {
	return NewRecord([]TaskRecord{
		{ID: "t1", Agent: "implementer", Prompt: "do a"},
		{ID: "t2", Agent: "implementer", Prompt: "do b"},
	}, false)
}

func TestPutAndGet(t *testing.T) {
	r := New(t.TempDir(), 0)
	rec := twoTaskRecord()

	if err := r.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := r.Get(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record")
	}
	if got.TaskCount != 2 || len(got.Tasks) != 2 {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestGetAbsent(t *testing.T) {
	r := New(t.TempDir(), 0)
	got, err := r.Get("no-such-swarm")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestPutRequiresID(t *testing.T) {
	r := New(t.TempDir(), 0)
	if err := r.Put(Record{}); err == nil {
		t.Fatal("expected error for record without id")
	}
}

func TestPruneKeepsMostRecent(t *testing.T) {
	r := New(t.TempDir(), 3)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := Record{
			ID:        fmt.Sprintf("swarm-%d", i),
			CreatedAt: registry.Time{Time: base.Add(time.Duration(i) * time.Hour)},
			Status:    StatusCompleted,
		}
		if err := r.Put(rec); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	recs, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 retained records, got %d", len(recs))
	}
	// The three most recently created survive, newest first.
	wantIDs := []string{"swarm-4", "swarm-3", "swarm-2"}
	for i, want := range wantIDs {
		if recs[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, recs[i].ID)
		}
	}
}

func TestListSortsInvalidTimestampOldest(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)

	raw := `{
  "good": {"swarmId": "good", "createdAt": "2026-02-01T10:00:00Z", "status": "completed", "taskCount": 0, "worktreesEnabled": false, "tasks": []},
  "mangled": {"swarmId": "mangled", "createdAt": "last tuesday", "status": "completed", "taskCount": 0, "worktreesEnabled": false, "tasks": []}
}`
	if err := os.WriteFile(r.Path(), []byte(raw), 0644); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	recs, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected both records to survive, got %d", len(recs))
	}
	if recs[0].ID != "good" || recs[1].ID != "mangled" {
		t.Errorf("expected invalid timestamp to sort last, got %s then %s", recs[0].ID, recs[1].ID)
	}
}

func TestUpdateTaskLifecycle(t *testing.T) {
	r := New(t.TempDir(), 0)
	rec := twoTaskRecord()
	if err := r.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := r.UpdateTask(rec.ID, "t1", TaskUpdate{Status: TaskRunning, SessionID: "sess-1"}); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	got, _ := r.Get(rec.ID)
	if got.Tasks[0].Status != TaskRunning || got.Tasks[0].SessionID != "sess-1" {
		t.Fatalf("unexpected task after running update: %+v", got.Tasks[0])
	}
	if got.Status != StatusRunning {
		t.Errorf("expected swarm running, got %s", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("completedAt set while still running")
	}

	res := &verdict.Result{Outcome: &verdict.Outcome{Status: "completed", FilesChanged: []string{"a.go"}, Summary: "done"}}
	if err := r.UpdateTask(rec.ID, "t1", TaskUpdate{Status: TaskCompleted, Result: res}); err != nil {
		t.Fatalf("complete t1: %v", err)
	}
	if err := r.UpdateTask(rec.ID, "t2", TaskUpdate{Status: TaskFailed, Result: &verdict.Result{Raw: "??", Err: "not json"}}); err != nil {
		t.Fatalf("fail t2: %v", err)
	}

	got, _ = r.Get(rec.ID)
	if got.Status != StatusPartial {
		t.Errorf("expected partial, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completedAt once all tasks terminal")
	}
	if got.Tasks[0].Result == nil || !got.Tasks[0].Result.OK() {
		t.Errorf("expected structured result on t1, got %+v", got.Tasks[0].Result)
	}
	if got.Tasks[1].Result == nil || got.Tasks[1].Result.Err == "" {
		t.Errorf("expected diagnostic result on t2, got %+v", got.Tasks[1].Result)
	}
}

func TestUpdateTaskTerminalIsImmutable(t *testing.T) {
	r := New(t.TempDir(), 0)
	rec := twoTaskRecord()
	if err := r.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := r.UpdateTask(rec.ID, "t1", TaskUpdate{Status: TaskCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// A late duplicate trying to flip the task must be silently ignored.
	if err := r.UpdateTask(rec.ID, "t1", TaskUpdate{Status: TaskFailed, Result: &verdict.Result{Err: "late"}}); err != nil {
		t.Fatalf("late update: %v", err)
	}

	got, _ := r.Get(rec.ID)
	if got.Tasks[0].Status != TaskCompleted {
		t.Errorf("terminal status changed to %s", got.Tasks[0].Status)
	}
	if got.Tasks[0].Result != nil {
		t.Error("late result applied to terminal task")
	}
}

func TestUpdateTaskCompletedAtSetOnce(t *testing.T) {
	r := New(t.TempDir(), 0)
	rec := NewRecord([]TaskRecord{{ID: "t1", Agent: "implementer"}}, false)
	if err := r.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := r.UpdateTask(rec.ID, "t1", TaskUpdate{Status: TaskCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	first, _ := r.Get(rec.ID)
	if first.CompletedAt == nil {
		t.Fatal("expected completedAt")
	}
	stamp := first.CompletedAt.Time

	if err := r.UpdateTask(rec.ID, "t1", TaskUpdate{Status: TaskFailed}); err != nil {
		t.Fatalf("late update: %v", err)
	}
	second, _ := r.Get(rec.ID)
	if !second.CompletedAt.Equal(stamp) {
		t.Error("completedAt changed by a late update")
	}
}

func TestUpdateTaskUnknownTargets(t *testing.T) {
	r := New(t.TempDir(), 0)
	rec := twoTaskRecord()
	if err := r.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	err := r.UpdateTask("ghost-swarm", "t1", TaskUpdate{Status: TaskRunning})
	if !errors.Is(err, ErrSwarmNotFound) {
		t.Errorf("expected ErrSwarmNotFound, got %v", err)
	}

	err = r.UpdateTask(rec.ID, "ghost-task", TaskUpdate{Status: TaskRunning})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}
