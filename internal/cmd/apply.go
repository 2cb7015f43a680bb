package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/plans"
	"github.com/droverhq/drover/internal/swarm"
)

var applyCmd = &cobra.Command{
	Use:   "apply <plan>",
	Short: "Hand a single plan to an implementer",
	Long: `Apply resolves a partial plan name against the plan artifacts on disk
(prefix match first, then substring, each accepted only when unique) and
marks the plan executed. With --run the artifact is sent to an
implementer worker session; otherwise the handoff prompt is printed for
an external one.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var applyRun bool

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVar(&applyRun, "run", false, "Execute the plan against the worker host")
}

func runApply(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	res, candidates, err := e.plans.FindClosest(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve plan: %w", err)
	}
	if res == nil {
		if len(candidates) > 1 {
			return fmt.Errorf("plan %q is ambiguous; candidates: %s", args[0], strings.Join(candidates, ", "))
		}
		return fmt.Errorf("no plan matching %q found under %s", args[0], e.plans.Dir())
	}

	fmt.Printf("Plan: %s\n", res.Plan)
	fmt.Printf("Artifact: %s\n", res.Path)
	if res.Record != nil {
		fmt.Printf("Session: %s (status %s)\n", res.Key, res.Record.Status)
	}

	req := dispatch.TaskRequest{
		ID:     res.Plan,
		Agent:  dispatch.DefaultAgent,
		Prompt: fmt.Sprintf("Implement the plan at %s. Follow it exactly and report the structured outcome when done.", res.Path),
	}

	if !applyRun {
		markExecuted(e, res.Plan)
		fmt.Printf("\nHand to an %s worker:\n  %s\n", req.Agent, req.Prompt)
		return nil
	}

	rec, err := executeSwarm(cmd, e, []dispatch.TaskRequest{req}, e.cfg.Swarm.Worktrees)
	if err != nil {
		return err
	}
	printSwarmOutcome(rec)

	status := plans.StatusExecuted
	if rec.Status == swarm.StatusFailed {
		status = plans.StatusFailed
	}
	markPlanStatus(e, res.Plan, status)
	return nil
}

// markExecuted advances the plan's newest registry entry to executed.
func markExecuted(e *env, plan string) {
	markPlanStatus(e, plan, plans.StatusExecuted)
}

// markPlanStatus updates the newest registry entry referencing the plan.
// Plans without a registry entry (authored outside a tracked session) are
// left alone; the artifact on disk is still the source of truth.
func markPlanStatus(e *env, plan string, status plans.Status) {
	entries, err := e.plans.List()
	if err != nil {
		e.log.Warn("failed to read plan registry", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.Record.Plan != plan || entry.Stale {
			continue
		}
		// Entries are newest first; the first hit is the live one.
		if err := e.plans.UpdateStatus(entry.Key, status); err != nil {
			e.log.Warn("failed to update plan status", "plan", plan, "error", err)
		}
		return
	}
}
