// Package runner executes a batch of task requests against worker sessions
// and records every state transition in the swarm registry. The registry is
// the source of truth: a crash mid-run leaves behind a record whose task
// statuses show exactly how far each worker got.
package runner

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/logging"
	"github.com/droverhq/drover/internal/swarm"
	"github.com/droverhq/drover/internal/verdict"
	"github.com/droverhq/drover/internal/worker"
)

// DefaultMaxParallel bounds how many worker sessions run at once.
const DefaultMaxParallel = 4

// verdictInstruction is appended to every task prompt so the worker's final
// reply is parseable by the verdict extractor.
const verdictInstruction = `

When finished, reply with only a JSON object of the form
{"status": "completed" | "failed", "filesChanged": ["path", ...], "summary": "one sentence"}.`

// Config carries the runner's collaborators.
type Config struct {
	// Client talks to worker sessions.
	Client worker.Client

	// Swarms receives every state transition.
	Swarms *swarm.Registry

	// MaxParallel bounds concurrent worker sessions. Non-positive falls
	// back to DefaultMaxParallel.
	MaxParallel int

	// Log receives progress diagnostics. Nil falls back to a nop logger.
	Log *logging.Logger
}

// Runner drives swarm execution.
type Runner struct {
	client      worker.Client
	swarms      *swarm.Registry
	maxParallel int
	log         *logging.Logger
}

// New returns a Runner from the given configuration.
func New(cfg Config) (*Runner, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("worker client is required")
	}
	if cfg.Swarms == nil {
		return nil, fmt.Errorf("swarm registry is required")
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	log := cfg.Log
	if log == nil {
		log = logging.NopLogger()
	}
	return &Runner{
		client:      cfg.Client,
		swarms:      cfg.Swarms,
		maxParallel: maxParallel,
		log:         log,
	}, nil
}

// Run records a new swarm for the requests and executes every task, at most
// MaxParallel at a time. It blocks until all tasks are terminal and returns
// the final record. Task failures are recorded, not returned: the only
// errors are an empty batch and registry write failures.
//
// Cancelling the context stops new tasks from starting; tasks that never
// started are marked failed.
func (r *Runner) Run(ctx context.Context, reqs []dispatch.TaskRequest, worktrees bool) (*swarm.Record, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no tasks to run")
	}

	tasks := make([]swarm.TaskRecord, len(reqs))
	for i, req := range reqs {
		id := req.ID
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		tasks[i] = swarm.TaskRecord{
			ID:     id,
			Agent:  req.Agent,
			Prompt: req.Prompt,
			Status: swarm.TaskPending,
		}
	}

	rec := swarm.NewRecord(tasks, worktrees)
	if err := r.swarms.Put(rec); err != nil {
		return nil, fmt.Errorf("failed to record swarm: %w", err)
	}

	log := r.log.WithSwarm(rec.ID)
	log.Info("swarm dispatched", "task_count", rec.TaskCount, "worktrees", worktrees)

	workers := pool.New().WithMaxGoroutines(r.maxParallel)
	for _, task := range rec.Tasks {
		task := task
		workers.Go(func() {
			r.runTask(ctx, rec.ID, task)
		})
	}
	workers.Wait()

	final, err := r.swarms.Get(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload swarm record: %w", err)
	}
	if final == nil {
		return nil, fmt.Errorf("swarm record %s disappeared during the run", rec.ID)
	}
	log.Info("swarm finished", "status", final.Status.String())
	return final, nil
}

// runTask drives one task from pending to a terminal state. Every failure
// mode ends in a failed task record carrying a diagnostic, so the swarm
// rollup always converges.
func (r *Runner) runTask(ctx context.Context, swarmID string, task swarm.TaskRecord) {
	log := r.log.WithSwarm(swarmID).WithTask(task.ID)

	if ctx.Err() != nil {
		r.finish(log, swarmID, task.ID, verdict.Result{Err: "cancelled before the task started"})
		return
	}

	sessionID, err := r.client.CreateSession(ctx, task.Agent)
	if err != nil {
		r.finish(log, swarmID, task.ID, verdict.Result{Err: fmt.Sprintf("failed to create session: %v", err)})
		return
	}
	log = log.WithSession(sessionID)

	if err := r.swarms.UpdateTask(swarmID, task.ID, swarm.TaskUpdate{
		Status:    swarm.TaskRunning,
		SessionID: sessionID,
	}); err != nil {
		log.Error("failed to mark task running", "error", err)
	}

	if err := r.client.SendMessage(ctx, sessionID, task.Prompt+verdictInstruction); err != nil {
		r.finish(log, swarmID, task.ID, verdict.Result{Err: fmt.Sprintf("failed to send prompt: %v", err)})
		return
	}

	msgs, err := r.client.ListMessages(ctx, sessionID)
	if err != nil {
		r.finish(log, swarmID, task.ID, verdict.Result{Err: fmt.Sprintf("failed to read transcript: %v", err)})
		return
	}

	r.finish(log, swarmID, task.ID, verdict.Extract(msgs))
}

// finish records the task's terminal state from its extraction result.
func (r *Runner) finish(log *logging.Logger, swarmID, taskID string, res verdict.Result) {
	status := swarm.TaskFailed
	if res.Outcome.Succeeded() {
		status = swarm.TaskCompleted
	}

	err := r.swarms.UpdateTask(swarmID, taskID, swarm.TaskUpdate{
		Status: status,
		Result: &res,
	})
	if err != nil {
		log.Error("failed to record task result", "error", err)
		return
	}
	log.Info("task finished", "status", status.String(), "ok", res.OK())
}
