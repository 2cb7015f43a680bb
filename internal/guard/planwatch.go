package guard

import (
	"context"
	"sync"

	"github.com/droverhq/drover/internal/logging"
	"github.com/droverhq/drover/internal/plans"
)

// NoticeSet tracks which sessions have already been notified about an event.
// It is safe for concurrent use.
type NoticeSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewNoticeSet returns an empty NoticeSet.
func NewNoticeSet() *NoticeSet {
	return &NoticeSet{seen: make(map[string]bool)}
}

// FirstTime reports whether this is the first call for the given key and
// marks it seen.
func (n *NoticeSet) FirstTime(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seen[key] {
		return false
	}
	n.seen[key] = true
	return true
}

// PlanWatchGuard registers plan artifacts against the writing session. When a
// file-writing tool targets a path matching the plan-artifact convention, the
// plan is recorded in the lifecycle registry as a side effect. The guard
// never rejects; a registry failure is logged and the write proceeds.
type PlanWatchGuard struct {
	registry *plans.Registry
	notices  *NoticeSet
	log      *logging.Logger
}

// NewPlanWatchGuard returns a PlanWatchGuard recording into the given
// registry.
func NewPlanWatchGuard(registry *plans.Registry, log *logging.Logger) *PlanWatchGuard {
	if log == nil {
		log = logging.NopLogger()
	}
	return &PlanWatchGuard{
		registry: registry,
		notices:  NewNoticeSet(),
		log:      log,
	}
}

func (g *PlanWatchGuard) Name() string { return "plan-watch" }

func (g *PlanWatchGuard) Check(_ context.Context, call *ToolCall) error {
	if g.registry == nil || !writeTools[call.Tool] || call.SessionID == "" {
		return nil
	}
	path := stringArg(call.Args, "file_path")
	if path == "" {
		return nil
	}
	name, ok := plans.IsArtifactPath(g.registry.Dir(), path)
	if !ok {
		return nil
	}

	logger := g.log.WithGuard(g.Name()).WithSession(call.SessionID)
	if err := g.registry.Register(call.SessionID, name); err != nil {
		logger.Warn("failed to register plan artifact", "plan", name, "error", err)
		return nil
	}
	if g.notices.FirstTime(call.SessionID) {
		logger.Info("plan artifact registered", "plan", name, "path", path)
	} else {
		logger.Debug("plan artifact re-registered", "plan", name, "path", path)
	}
	return nil
}
