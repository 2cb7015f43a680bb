package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/droverhq/drover/internal/logging"
	"github.com/droverhq/drover/internal/plans"
)

// AuditLog appends one line per executed file-mutating tool call to an
// append-only log. Audit logging is best effort: a failed write is logged
// and swallowed, never surfaced to the call.
type AuditLog struct {
	mu   sync.Mutex
	path string
	log  *logging.Logger
}

// NewAuditLog returns an AuditLog writing to the given file.
func NewAuditLog(path string, log *logging.Logger) *AuditLog {
	if log == nil {
		log = logging.NopLogger()
	}
	return &AuditLog{path: path, log: log}
}

func (a *AuditLog) Name() string { return "audit" }

// After records the call when it mutated a file. The line format is
// tab-separated: timestamp, tool name, truncated session key, target path.
func (a *AuditLog) After(_ context.Context, res *ToolResult) {
	if !writeTools[res.Tool] {
		return
	}
	target := stringArg(res.Args, "file_path")
	if target == "" {
		return
	}

	line := fmt.Sprintf("%s\t%s\t%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339),
		res.Tool,
		plans.SessionKey(res.SessionID, plans.DefaultKeyLength),
		target,
	)
	if err := a.append([]byte(line)); err != nil {
		a.log.WithGuard(a.Name()).Debug("failed to write audit line", "error", err)
	}
}

// append serializes writes under a mutex. Each line is small enough that
// O_APPEND keeps concurrent writers from interleaving on POSIX systems.
func (a *AuditLog) append(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append audit line: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	return nil
}
