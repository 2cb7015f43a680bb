package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List tracked plans",
	Long: `List every plan the registry knows about, newest first, with the
plan's lifecycle status and owning session key. Entries whose artifact
was deleted out from under the registry are flagged stale. Artifacts on
disk that no session registered are listed separately.`,
	RunE: runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	entries, err := e.plans.List()
	if err != nil {
		return fmt.Errorf("failed to list plans: %w", err)
	}

	divider()
	fmt.Println(titleStyle.Render("Plans"))
	divider()

	if len(entries) == 0 {
		fmt.Println("\nNo plans registered.")
		fmt.Printf("Plan artifacts are tracked once a session writes one under %s.\n", e.plans.Dir())
	} else {
		fmt.Printf("\nFound %d plan(s):\n\n", len(entries))

		for _, entry := range entries {
			dot := statusDot(planStatusColor(entry.Record.Status))
			fmt.Printf("  %s %s\n", dot, entry.Record.Plan)
			fmt.Printf("    Session: %s\n", entry.Key)
			fmt.Printf("    Created: %s\n", entry.Record.CreatedAt.Format(time.RFC822))
			fmt.Printf("    Status:  %s\n", entry.Record.Status)
			if entry.Stale {
				fmt.Printf("    %s\n", staleStyle.Render("STALE (artifact deleted)"))
			}
			fmt.Println()
		}
	}

	// Artifacts with no registry entry still dispatch fine; show them so
	// the listing covers everything on disk.
	registered := map[string]bool{}
	for _, entry := range entries {
		registered[entry.Record.Plan] = true
	}
	var untracked []string
	for _, name := range e.plans.ListArtifacts() {
		if !registered[name] {
			untracked = append(untracked, name)
		}
	}
	if len(untracked) > 0 {
		fmt.Printf("Untracked artifacts (no owning session):\n")
		for _, name := range untracked {
			fmt.Printf("  %s %s\n", mutedStyle.Render("○"), name)
		}
	}

	return nil
}
