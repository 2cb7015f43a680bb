package dispatch

import (
	"fmt"
	"strings"
)

// TaskRequest is one delegable unit of work: a worker persona and the
// prompt it should receive.
type TaskRequest struct {
	// ID labels the task inside its swarm. Empty lets the runner assign a
	// positional one.
	ID string `json:"taskId,omitempty"`

	Agent  string `json:"agent"`
	Prompt string `json:"prompt"`
}

// ParseTaskLines parses a free-form batch: one "agent: prompt" per line.
// Blank lines are skipped. A line without a colon, an empty agent, an
// agent violating the safe-name grammar, or an empty prompt rejects the
// whole batch with the line number and a corrected example.
func ParseTaskLines(input string) ([]TaskRequest, error) {
	var reqs []TaskRequest
	for i, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		agent, prompt, found := strings.Cut(line, ":")
		agent = strings.TrimSpace(agent)
		prompt = strings.TrimSpace(prompt)
		if !found || agent == "" || prompt == "" {
			return nil, &Rejection{
				Kind:    RejectBadTasks,
				Message: fmt.Sprintf(`line %d: expected "agent: prompt" (e.g. "implementer: add request logging to the auth module")`, i+1),
			}
		}
		if !nameRE.MatchString(agent) {
			return nil, &Rejection{
				Kind:    RejectBadTasks,
				Names:   []string{agent},
				Message: fmt.Sprintf("line %d: invalid agent name %q: use lowercase alphanumerics with hyphen separators (e.g. implementer)", i+1, agent),
			}
		}

		reqs = append(reqs, TaskRequest{Agent: agent, Prompt: prompt})
	}

	if len(reqs) == 0 {
		return nil, &Rejection{
			Kind:    RejectUsage,
			Message: `no tasks given: provide one "agent: prompt" line per task`,
		}
	}
	return reqs, nil
}
