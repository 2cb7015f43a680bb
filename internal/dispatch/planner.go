// Package dispatch turns a batch request into a validated, resolvable list
// of plan references or a precise rejection. Validation runs in a fixed
// order with one rejection per tier: name grammar, batch size, artifact
// existence. Existence checks fan out concurrently and every miss is
// aggregated into a single report.
package dispatch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/droverhq/drover/internal/plans"
)

// DefaultAgent is the worker persona plans are dispatched to.
const DefaultAgent = "implementer"

// existenceCheckers bounds the fan-out for artifact existence checks.
const existenceCheckers = 8

// nameRE is the safe-name grammar: lowercase alphanumerics in hyphen
// separated runs. It rejects path traversal, case drift, and leading or
// trailing hyphens.
var nameRE = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// RejectionKind classifies why a dispatch request was refused.
type RejectionKind string

const (
	// RejectUsage: no names supplied and nothing discoverable.
	RejectUsage RejectionKind = "usage"

	// RejectSingle: exactly one plan; the singular flow should be used.
	RejectSingle RejectionKind = "single-plan"

	// RejectBadNames: one or more names violate the safe-name grammar.
	RejectBadNames RejectionKind = "invalid-names"

	// RejectMissing: one or more named artifacts do not exist.
	RejectMissing RejectionKind = "missing-artifacts"

	// RejectBadTasks: a free-form task line could not be parsed.
	RejectBadTasks RejectionKind = "invalid-tasks"
)

// Rejection is a dispatch refusal. The message is actionable and meant to
// be surfaced verbatim to the requester.
type Rejection struct {
	Kind    RejectionKind
	Names   []string
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// TaskSpec is one resolved dispatch unit.
type TaskSpec struct {
	TaskID       string `json:"taskId"`
	Plan         string `json:"plan"`
	ArtifactPath string `json:"planArtifactPath"`
}

// Payload is a validated batch ready to hand to the dispatch tool.
type Payload struct {
	Tasks       []TaskSpec `json:"tasks"`
	Explanation string     `json:"explanation"`
}

// Requests converts the payload into swarm task requests, one implementer
// worker per plan.
func (p *Payload) Requests() []TaskRequest {
	reqs := make([]TaskRequest, len(p.Tasks))
	for i, t := range p.Tasks {
		reqs[i] = TaskRequest{
			ID:     t.TaskID,
			Agent:  DefaultAgent,
			Prompt: fmt.Sprintf("Implement the plan at %s. Follow it exactly and report the structured outcome when done.", t.ArtifactPath),
		}
	}
	return reqs
}

// Planner validates and resolves batch dispatch requests against the plan
// registry and its artifact directory.
type Planner struct {
	plans *plans.Registry
}

// New returns a Planner over the given plan registry.
func New(reg *plans.Registry) *Planner {
	return &Planner{plans: reg}
}

// ValidateName checks one plan or agent name against the safe-name grammar.
func ValidateName(name string) error {
	if nameRE.MatchString(name) {
		return nil
	}
	return &Rejection{
		Kind:    RejectBadNames,
		Names:   []string{name},
		Message: fmt.Sprintf("invalid name %q: use lowercase alphanumerics with hyphen separators (e.g. auth-login)", name),
	}
}

// Plan validates a batch of plan names and resolves it into a payload.
// With no names it switches to discovery mode: every plan artifact whose
// latest registry status is not executed becomes a candidate. Validation
// order is grammar, then batch size, then artifact existence; the first
// failing tier rejects and later tiers never run.
func (p *Planner) Plan(names []string) (*Payload, error) {
	names = normalize(names)

	if len(names) == 0 {
		names = p.discover()
		if len(names) == 0 {
			return nil, &Rejection{
				Kind:    RejectUsage,
				Message: "nothing to dispatch: no plan names given and no unexecuted plans found; pass at least two plan names (e.g. drover dispatch auth-login db-migrate)",
			}
		}
	}

	var bad []string
	for _, n := range names {
		if !nameRE.MatchString(n) {
			bad = append(bad, n)
		}
	}
	if len(bad) > 0 {
		return nil, &Rejection{
			Kind:    RejectBadNames,
			Names:   bad,
			Message: fmt.Sprintf("invalid plan name(s): %s; names are lowercase alphanumerics with hyphen separators (e.g. auth-login)", strings.Join(bad, ", ")),
		}
	}

	if len(names) == 1 {
		return nil, &Rejection{
			Kind:    RejectSingle,
			Names:   names,
			Message: fmt.Sprintf("batch dispatch needs at least two plans; for a single plan use: drover apply %s", names[0]),
		}
	}

	missing := p.missingArtifacts(names)
	if len(missing) > 0 {
		return nil, &Rejection{
			Kind:    RejectMissing,
			Names:   missing,
			Message: fmt.Sprintf("no plan artifact found for: %s; expected plan-<name>.md under %s", strings.Join(missing, ", "), p.plans.Dir()),
		}
	}

	tasks := make([]TaskSpec, len(names))
	for i, n := range names {
		tasks[i] = TaskSpec{
			TaskID:       n,
			Plan:         n,
			ArtifactPath: p.plans.ArtifactPath(n),
		}
	}
	return &Payload{
		Tasks:       tasks,
		Explanation: fmt.Sprintf("dispatching %d plans to %s workers: %s", len(tasks), DefaultAgent, strings.Join(names, ", ")),
	}, nil
}

// missingArtifacts stats every named artifact concurrently and returns the
// misses sorted, so the report is complete and stable regardless of check
// completion order.
func (p *Planner) missingArtifacts(names []string) []string {
	var (
		mu      sync.Mutex
		missing []string
	)
	workers := pool.New().WithMaxGoroutines(existenceCheckers)
	for _, name := range names {
		name := name
		workers.Go(func() {
			if !p.plans.ArtifactExists(name) {
				mu.Lock()
				missing = append(missing, name)
				mu.Unlock()
			}
		})
	}
	workers.Wait()
	sort.Strings(missing)
	return missing
}

// discover lists the plan artifacts whose latest known status is not
// executed. Registry entries are newest first, so the first entry seen per
// plan is its latest.
func (p *Planner) discover() []string {
	executed := map[string]bool{}
	seen := map[string]bool{}
	if entries, err := p.plans.List(); err == nil {
		for _, e := range entries {
			if seen[e.Record.Plan] {
				continue
			}
			seen[e.Record.Plan] = true
			if e.Record.Status == plans.StatusExecuted {
				executed[e.Record.Plan] = true
			}
		}
	}

	var eligible []string
	for _, name := range p.plans.ListArtifacts() {
		if !executed[name] {
			eligible = append(eligible, name)
		}
	}
	return eligible
}

// normalize trims fields and drops empties and duplicates, preserving
// order.
func normalize(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
