package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List worker personas",
	Long: `List every persona dispatches can target: the built-in set plus any
manifest overrides found in the agents directory. Restricted personas
cannot be delegated to directly; the listing names the entry point that
reaches them.`,
	RunE: runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	names := e.agents.Names()

	divider()
	fmt.Println(titleStyle.Render("Personas"))
	divider()
	fmt.Printf("\nFound %d persona(s):\n\n", len(names))

	for _, name := range names {
		p, ok := e.agents.Get(name)
		if !ok {
			continue
		}
		dot := statusDot(greenColor)
		if !p.Direct {
			dot = statusDot(amberColor)
		}
		fmt.Printf("  %s %s\n", dot, p.Name)
		if p.Description != "" {
			fmt.Printf("    %s\n", p.Description)
		}
		if p.Direct {
			fmt.Printf("    Delegation: direct\n")
		} else {
			fmt.Printf("    Delegation: via %s only\n", p.EntryPoint)
		}
		fmt.Println()
	}

	return nil
}
