// Package verdict parses a worker session's final output into a structured
// outcome. Workers are asked to finish with a JSON object describing what
// they did, but they are free-form text generators: the extractor is
// defensive end to end, and anything it cannot parse degrades to the raw
// text plus a diagnostic instead of an error.
package verdict

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/droverhq/drover/internal/worker"
)

// StatusCompleted is the outcome status a worker reports on success.
const StatusCompleted = "completed"

// Outcome is the structured verdict a worker reports when it finishes.
type Outcome struct {
	// Status is the worker's own assessment, conventionally "completed"
	// or "failed".
	Status string `json:"status"`

	// FilesChanged lists the paths the worker modified.
	FilesChanged []string `json:"filesChanged"`

	// Summary is a short description of what was done.
	Summary string `json:"summary"`
}

// Succeeded reports whether the worker called its own work completed.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == StatusCompleted
}

// Result is what extraction produces: exactly one arm is populated. When
// Outcome is nil, Raw holds whatever the worker said (possibly empty) and
// Err explains why it could not be parsed. Both arms share one persisted
// shape so task records can carry either.
type Result struct {
	Outcome *Outcome `json:"outcome,omitempty"`
	Raw     string   `json:"raw,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// OK reports whether extraction produced a structured outcome.
func (r Result) OK() bool {
	return r.Outcome != nil
}

// Extract converts a session transcript into a Result. It never panics and
// never returns a Go error: malformed worker output is always representable
// as a raw-plus-diagnostic failure so the caller can still report what the
// worker said.
func Extract(msgs []worker.Message) Result {
	if len(msgs) == 0 {
		return Result{Err: "session has no messages"}
	}

	var final *worker.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == worker.RoleAssistant {
			final = &msgs[i]
			break
		}
	}
	if final == nil {
		return Result{Err: "session has no assistant messages"}
	}
	if final.Error != "" {
		return Result{Err: final.Error}
	}

	text := strings.TrimSpace(final.Text())
	if text == "" {
		return Result{Err: "final assistant message has no text content"}
	}

	body := stripFence(text)

	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Result{Raw: text, Err: fmt.Sprintf("output is not valid JSON: %v", err)}
	}

	outcome, problems := validateOutcome(payload)
	if outcome == nil {
		return Result{Raw: text, Err: "missing required fields: " + strings.Join(problems, ", ")}
	}
	return Result{Outcome: outcome}
}

// validateOutcome is the schema check for the worker-output contract. All
// three fields are required with the right types; nothing is coerced. The
// returned problem list names each missing or wrongly typed field.
func validateOutcome(payload map[string]any) (*Outcome, []string) {
	var problems []string

	status, ok := payload["status"].(string)
	if !ok || status == "" {
		problems = append(problems, "status")
	}

	summary, ok := payload["summary"].(string)
	if !ok {
		problems = append(problems, "summary")
	}

	files, ok := payload["filesChanged"].([]any)
	changed := make([]string, 0, len(files))
	if !ok {
		problems = append(problems, "filesChanged")
	} else {
		for _, f := range files {
			s, ok := f.(string)
			if !ok {
				problems = append(problems, "filesChanged")
				break
			}
			changed = append(changed, s)
		}
	}

	if len(problems) > 0 {
		return nil, problems
	}
	return &Outcome{Status: status, FilesChanged: changed, Summary: summary}, nil
}

// stripFence removes a single enclosing markdown code fence when the whole
// text is wrapped in one: the first and last non-empty lines must both
// begin with the fence marker. The opening fence may carry a language tag.
// Text that is not fully fenced passes through unchanged.
func stripFence(text string) string {
	lines := strings.Split(text, "\n")

	first, last := -1, -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			first = i
			break
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last = i
			break
		}
	}
	if first < 0 || last <= first {
		return text
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[first]), "```") ||
		!strings.HasPrefix(strings.TrimSpace(lines[last]), "```") {
		return text
	}
	return strings.TrimSpace(strings.Join(lines[first+1:last], "\n"))
}
