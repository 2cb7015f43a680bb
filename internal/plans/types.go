// Package plans tracks plan artifacts through their lifecycle. A plan is a
// markdown file named plan-<name>.md inside the state directory; the registry
// maps a short session key to the plan that session authored and the status
// it has reached. The artifact file on disk is the source of truth for "does
// this plan exist": registry entries whose artifact vanished self-heal to
// absent.
package plans

import (
	"github.com/droverhq/drover/internal/registry"
)

// Status represents how far a plan has moved through its lifecycle.
type Status string

const (
	// StatusCreated indicates the plan artifact was written and registered.
	StatusCreated Status = "created"

	// StatusReviewed indicates the plan passed a review step.
	StatusReviewed Status = "reviewed"

	// StatusExecuted indicates the plan was handed to an implementer.
	StatusExecuted Status = "executed"

	// StatusFailed indicates execution of the plan failed.
	StatusFailed Status = "failed"
)

// String returns the string representation of the plan status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known plan statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusReviewed, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// Record is one registry entry: the plan a session is working on.
// Statuses conventionally only advance, but any status may be set by the
// owning caller; there is no formal transition table.
type Record struct {
	// Plan is the logical plan name, matching an artifact plan-<name>.md.
	Plan string `json:"plan"`

	// CreatedAt is the time of first association.
	CreatedAt registry.Time `json:"createdAt"`

	// Status is the lifecycle position.
	Status Status `json:"status"`
}

// Entry is a Record paired with its session key and a freshness flag,
// as returned by List.
type Entry struct {
	Key    string
	Record Record

	// Stale is set when the backing artifact no longer exists on disk.
	Stale bool
}

// Resolution is a successful fuzzy plan lookup.
type Resolution struct {
	// Plan is the resolved plan name.
	Plan string

	// Path is the absolute path of the backing artifact.
	Path string

	// Key and Record identify the newest registry entry referencing the
	// plan, when one exists. Key is empty otherwise.
	Key    string
	Record *Record
}

// DefaultKeyLength is the session-key prefix length. Keys this short can
// collide across sessions; colliding sessions share a registry entry, which
// is an accepted trade for stable, human-scannable keys.
const DefaultKeyLength = 8

// SessionKey derives the fixed-length registry key for a session identifier.
// A non-positive length falls back to DefaultKeyLength.
func SessionKey(sessionID string, length int) string {
	if length <= 0 {
		length = DefaultKeyLength
	}
	if len(sessionID) <= length {
		return sessionID
	}
	return sessionID[:length]
}
