package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clear the plan registry",
	Long: `Clean drops every entry from the plan registry. Plan artifacts on
disk are kept unless --artifacts is given, in which case every
plan-<name>.md under the state directory is deleted too.`,
	RunE: runClean,
}

var cleanArtifacts bool

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVar(&cleanArtifacts, "artifacts", false, "Also delete plan artifact files")
}

func runClean(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	artifacts := len(e.plans.ListArtifacts())

	if err := e.plans.Clear(cleanArtifacts); err != nil {
		return fmt.Errorf("failed to clean plans: %w", err)
	}

	fmt.Println("Plan registry cleared.")
	if cleanArtifacts {
		fmt.Printf("Removed %d plan artifact(s).\n", artifacts)
	} else if artifacts > 0 {
		fmt.Printf("%d plan artifact(s) kept on disk; pass --artifacts to remove them.\n", artifacts)
	}
	return nil
}
