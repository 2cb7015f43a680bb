package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/swarm"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [plan...]",
	Short: "Validate and dispatch a batch of plans to worker sessions",
	Long: `Dispatch validates a batch of plan names and resolves each one to its
plan artifact. With no names, every plan artifact not yet executed is
discovered and dispatched.

Validation runs in a fixed order: name grammar, then batch size, then
artifact existence. A batch of one is redirected to 'drover apply'.

With --tasks, free-form work is dispatched instead of plans: one
"agent: prompt" line per task ('-' reads the lines from stdin).

By default the resolved payload is printed for an external dispatch
tool; --run executes it against the configured worker host.`,
	RunE: runDispatch,
}

var (
	dispatchRun       bool
	dispatchWorktrees bool
	dispatchTasks     string
)

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().BoolVar(&dispatchRun, "run", false, "Execute the batch against the worker host")
	dispatchCmd.Flags().BoolVar(&dispatchWorktrees, "worktrees", false, "Run each task in an isolated worktree")
	dispatchCmd.Flags().StringVar(&dispatchTasks, "tasks", "", `Free-form task lines, one "agent: prompt" per line ('-' for stdin)`)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	var reqs []dispatch.TaskRequest

	if dispatchTasks != "" {
		if len(args) > 0 {
			return fmt.Errorf("--tasks and plan names are mutually exclusive")
		}
		input := dispatchTasks
		if input == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read tasks from stdin: %w", err)
			}
			input = string(data)
		}
		reqs, err = dispatch.ParseTaskLines(input)
		if err != nil {
			return err
		}
		fmt.Printf("Dispatching %d task(s)\n", len(reqs))
		if !dispatchRun {
			return printJSON(reqs)
		}
	} else {
		payload, err := dispatch.New(e.plans).Plan(args)
		if err != nil {
			return err
		}

		fmt.Println(payload.Explanation)
		if err := printJSON(payload); err != nil {
			return err
		}
		if !dispatchRun {
			return nil
		}
		reqs = payload.Requests()
	}

	worktrees := dispatchWorktrees || e.cfg.Swarm.Worktrees
	rec, err := executeSwarm(cmd, e, reqs, worktrees)
	if err != nil {
		return err
	}

	printSwarmOutcome(rec)

	// For plan dispatches the task ID is the plan name; advance each plan
	// that ran to completion.
	if dispatchTasks == "" {
		for _, task := range rec.Tasks {
			if task.Status == swarm.TaskCompleted {
				markExecuted(e, task.ID)
			}
		}
	}
	return nil
}

// printJSON writes v to stdout indented, the shape dispatch tooling consumes.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// printSwarmOutcome summarizes a finished swarm for the terminal.
func printSwarmOutcome(rec *swarm.Record) {
	sum := swarm.Summarize(*rec)

	divider()
	fmt.Printf("Swarm %s: %s\n", rec.ID, rec.Status)
	fmt.Printf("  Completed: %d  Failed: %d  Total: %d\n", sum.Completed, sum.Failed, sum.Total)

	for _, task := range rec.Tasks {
		fmt.Printf("\n  Task %s (%s): %s\n", task.ID, task.Agent, task.Status)
		if task.Result == nil {
			continue
		}
		switch {
		case task.Result.OK():
			fmt.Printf("    %s\n", task.Result.Outcome.Summary)
			for _, f := range task.Result.Outcome.FilesChanged {
				fmt.Printf("      %s\n", f)
			}
		case task.Result.Err != "":
			fmt.Printf("    %s\n", task.Result.Err)
		}
	}
	divider()
}
