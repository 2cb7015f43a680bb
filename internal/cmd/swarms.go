package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/swarm"
	"github.com/droverhq/drover/internal/util"
)

var swarmsCmd = &cobra.Command{
	Use:   "swarms [id]",
	Short: "List recorded swarms or inspect one",
	Long: `Without arguments, list every recorded swarm newest first with its
derived status and task rollup. With an id, show that swarm's full task
list including worker sessions and extracted results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSwarms,
}

func init() {
	rootCmd.AddCommand(swarmsCmd)
}

func runSwarms(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if len(args) == 1 {
		return showSwarm(e, args[0])
	}

	records, err := e.swarms.List()
	if err != nil {
		return fmt.Errorf("failed to list swarms: %w", err)
	}

	divider()
	fmt.Println(titleStyle.Render("Swarms"))
	divider()

	if len(records) == 0 {
		fmt.Println("\nNo swarms recorded.")
		fmt.Println("Run 'drover dispatch' to create one.")
		return nil
	}

	fmt.Printf("\nFound %d swarm(s):\n\n", len(records))
	for _, rec := range records {
		sum := swarm.Summarize(rec)
		dot := statusDot(swarmStatusColor(rec.Status.String()))

		fmt.Printf("  %s %s\n", dot, rec.ID)
		fmt.Printf("    Created: %s\n", rec.CreatedAt.Format(time.RFC822))
		fmt.Printf("    Status:  %s\n", rec.Status)
		fmt.Printf("    Tasks:   %d completed, %d failed, %d pending of %d\n",
			sum.Completed, sum.Failed, sum.Pending, sum.Total)
		if rec.WorktreesEnabled {
			fmt.Printf("    %s\n", mutedStyle.Render("worktrees enabled"))
		}
		fmt.Println()
	}
	return nil
}

func showSwarm(e *env, id string) error {
	rec, err := e.swarms.Get(id)
	if err != nil {
		return fmt.Errorf("failed to read swarm: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no swarm %s recorded", id)
	}

	divider()
	fmt.Println(titleStyle.Render("Swarm " + rec.ID))
	divider()

	fmt.Printf("\nCreated: %s\n", rec.CreatedAt.Format(time.RFC822))
	if rec.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", rec.CompletedAt.Format(time.RFC822))
	}
	fmt.Printf("Status: %s\n", rec.Status)

	for _, task := range rec.Tasks {
		dot := statusDot(swarmStatusColor(task.Status.String()))
		fmt.Printf("\n  %s %s (%s): %s\n", dot, task.ID, task.Agent, task.Status)
		if task.SessionID != "" {
			fmt.Printf("    Session: %s\n", task.SessionID)
		}
		if task.Result == nil {
			continue
		}
		switch {
		case task.Result.OK():
			fmt.Printf("    Summary: %s\n", task.Result.Outcome.Summary)
			for _, f := range task.Result.Outcome.FilesChanged {
				fmt.Printf("      %s\n", f)
			}
		case task.Result.Err != "":
			fmt.Printf("    Error: %s\n", task.Result.Err)
			if task.Result.Raw != "" {
				fmt.Printf("    Raw: %s\n", util.TruncateString(task.Result.Raw, 200))
			}
		}
	}
	return nil
}
