// Package guard evaluates tool invocations against the project's safety
// policy. Guards compose as an ordered chain attached to the host's pre- and
// post-tool hooks: each guard inspects only the calls relevant to it, and the
// first rejection stops both the chain and the guarded action.
package guard

import (
	"context"
	"fmt"

	"github.com/droverhq/drover/internal/agents"
	"github.com/droverhq/drover/internal/logging"
	"github.com/droverhq/drover/internal/plans"
)

// ToolCall is a tool invocation about to execute.
type ToolCall struct {
	// Tool is the tool name as the host reports it, e.g. "Bash" or "Write".
	Tool string

	// SessionID identifies the worker session making the call.
	SessionID string

	// CallID is the host's identifier for this invocation.
	CallID string

	// Args holds the tool's input fields. Guards read the fields they know
	// about and ignore the rest.
	Args map[string]any
}

// ToolResult is a tool invocation that already executed.
type ToolResult struct {
	Tool      string
	SessionID string
	Args      map[string]any
	Output    string
}

// Violation is a policy rejection. Its message is surfaced verbatim to the
// invoking worker so it can self-correct on the next attempt.
type Violation struct {
	// Guard names the rule that rejected the call.
	Guard string

	// Message explains the rejection, including a corrected example where
	// one exists.
	Message string
}

func (v *Violation) Error() string {
	return v.Message
}

// Guard evaluates one tool call before it executes. Returning nil allows the
// call, possibly after mutating it in place; returning a *Violation rejects
// it.
type Guard interface {
	Name() string
	Check(ctx context.Context, call *ToolCall) error
}

// PostGuard observes a tool call after it executed. Post guards are best
// effort and must not fail the call.
type PostGuard interface {
	Name() string
	After(ctx context.Context, res *ToolResult)
}

// Chain runs guards in registration order.
type Chain struct {
	pre  []Guard
	post []PostGuard
	log  *logging.Logger
}

// Config carries the collaborators the built-in guards need.
type Config struct {
	// Agents resolves persona delegation restrictions.
	Agents *agents.Table

	// Plans receives plan-artifact auto-registration.
	Plans *plans.Registry

	// AuditPath is the append-only audit log file. Empty disables auditing.
	AuditPath string

	// Log receives guard diagnostics. Nil falls back to a nop logger.
	Log *logging.Logger
}

// NewChain assembles the standard guard chain: alias redirect, destructive
// command, secret file, delegation capability, and plan auto-registration
// before execution; the audit log after. The order is load-bearing: a
// rejected call must never reach the registration or audit side effects.
func NewChain(cfg Config) *Chain {
	log := cfg.Log
	if log == nil {
		log = logging.NopLogger()
	}
	chain := &Chain{log: log}
	chain.pre = []Guard{
		&AliasGuard{},
		&DestructiveGuard{},
		&SecretGuard{},
		&DelegationGuard{Agents: cfg.Agents},
		NewPlanWatchGuard(cfg.Plans, log),
	}
	if cfg.AuditPath != "" {
		chain.post = []PostGuard{NewAuditLog(cfg.AuditPath, log)}
	}
	return chain
}

// Use appends a guard to the pre-execution chain.
func (c *Chain) Use(g Guard) {
	c.pre = append(c.pre, g)
}

// Observe appends a post-execution guard.
func (c *Chain) Observe(g PostGuard) {
	c.post = append(c.post, g)
}

// Before evaluates a call against every pre-execution guard in order. The
// first rejection is returned and no later guard runs, so a blocked call
// produces no side effects from guards further down the chain.
func (c *Chain) Before(ctx context.Context, call *ToolCall) error {
	if call == nil {
		return fmt.Errorf("tool call is nil")
	}
	for _, g := range c.pre {
		if err := g.Check(ctx, call); err != nil {
			c.log.WithGuard(g.Name()).Warn("tool call rejected",
				"tool", call.Tool,
				"session_id", call.SessionID,
				"reason", err.Error(),
			)
			return err
		}
	}
	return nil
}

// After feeds an executed call to every post-execution guard. Post guards
// never fail the call.
func (c *Chain) After(ctx context.Context, res *ToolResult) {
	if res == nil {
		return
	}
	for _, g := range c.post {
		g.After(ctx, res)
	}
}

// Tool classification tables. Guards are no-ops for tools outside their
// class, so unknown tools pass through untouched.
var (
	execTools = map[string]bool{
		"Bash": true,
	}

	readTools = map[string]bool{
		"Read":         true,
		"NotebookRead": true,
	}

	writeTools = map[string]bool{
		"Write":        true,
		"Edit":         true,
		"MultiEdit":    true,
		"NotebookEdit": true,
	}

	delegationTools = map[string]bool{
		"Task": true,
	}
)

// stringArg returns a string field from the call args, or "" when absent or
// of another type.
func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

// truncate shortens a string to maxLen runes, appending "..." when it was
// cut.
func truncate(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
