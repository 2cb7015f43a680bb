package main

import (
	"os"

	"github.com/droverhq/drover/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}
