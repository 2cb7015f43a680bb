package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/guard"
)

// hookRejected is the exit code the session host interprets as "block this
// tool call and show the worker the stderr message".
const hookRejected = 2

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Host-facing tool interception points",
	Long: `Hook is invoked by the session host around every tool call a worker
makes. The host pipes one JSON event on stdin; pre-tool runs the policy
guard chain and blocks the call by exiting 2 with the reason on stderr,
post-tool records what executed. Not meant to be run by hand.`,
}

var hookPreCmd = &cobra.Command{
	Use:   "pre-tool",
	Short: "Screen a tool call before it executes",
	RunE:  runHookPre,
}

var hookPostCmd = &cobra.Command{
	Use:   "post-tool",
	Short: "Record a tool call that executed",
	RunE:  runHookPost,
}

func init() {
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(hookPreCmd)
	hookCmd.AddCommand(hookPostCmd)
}

// hookEvent is the host's wire shape for both interception points.
type hookEvent struct {
	ToolName   string         `json:"tool_name"`
	SessionID  string         `json:"session_id"`
	CallID     string         `json:"call_id,omitempty"`
	ToolInput  map[string]any `json:"tool_input"`
	ToolOutput string         `json:"tool_output,omitempty"`
}

func readHookEvent() (*hookEvent, error) {
	var ev hookEvent
	if err := json.NewDecoder(os.Stdin).Decode(&ev); err != nil {
		return nil, fmt.Errorf("failed to decode hook event: %w", err)
	}
	if ev.ToolName == "" {
		return nil, fmt.Errorf("hook event has no tool_name")
	}
	return &ev, nil
}

// newGuardChain wires the policy chain against the environment's registries.
func newGuardChain(e *env) *guard.Chain {
	return guard.NewChain(guard.Config{
		Agents:    e.agents,
		Plans:     e.plans,
		AuditPath: e.auditPath(),
		Log:       e.log,
	})
}

func runHookPre(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ev, err := readHookEvent()
	if err != nil {
		return err
	}

	call := &guard.ToolCall{
		Tool:      ev.ToolName,
		SessionID: ev.SessionID,
		CallID:    ev.CallID,
		Args:      ev.ToolInput,
	}

	if err := newGuardChain(e).Before(cmd.Context(), call); err != nil {
		var v *guard.Violation
		if errors.As(err, &v) {
			fmt.Fprintln(os.Stderr, v.Message)
			e.close()
			os.Exit(hookRejected)
		}
		return err
	}

	// Guards may transform the call; echo the result for the host to use.
	ev.ToolInput = call.Args
	out, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode hook event: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runHookPost(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ev, err := readHookEvent()
	if err != nil {
		return err
	}

	newGuardChain(e).After(cmd.Context(), &guard.ToolResult{
		Tool:      ev.ToolName,
		SessionID: ev.SessionID,
		Args:      ev.ToolInput,
		Output:    ev.ToolOutput,
	})
	return nil
}
