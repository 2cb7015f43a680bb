package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/dispatch"
	"github.com/droverhq/drover/internal/runner"
	"github.com/droverhq/drover/internal/swarm"
	"github.com/droverhq/drover/internal/worker"
)

// executeSwarm runs a batch against the configured worker host and blocks
// until every task is terminal.
func executeSwarm(cmd *cobra.Command, e *env, reqs []dispatch.TaskRequest, worktrees bool) (*swarm.Record, error) {
	client := worker.NewHTTPClient(e.cfg.Worker.BaseURL, e.cfg.Worker.Token, e.cfg.Worker.Timeout())

	r, err := runner.New(runner.Config{
		Client:      client,
		Swarms:      e.swarms,
		MaxParallel: e.cfg.Swarm.MaxParallel,
		Log:         e.log,
	})
	if err != nil {
		return nil, err
	}

	fmt.Printf("Running %d task(s) against %s (max %d in parallel)\n",
		len(reqs), e.cfg.Worker.BaseURL, e.cfg.Swarm.MaxParallel)

	rec, err := r.Run(cmd.Context(), reqs, worktrees)
	if err != nil {
		return nil, fmt.Errorf("swarm execution failed: %w", err)
	}
	return rec, nil
}
