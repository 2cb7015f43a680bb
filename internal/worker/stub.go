package worker

import (
	"context"
	"fmt"
	"sync"
)

// Stub is an in-memory Client for tests. Each persona maps to the final
// assistant reply its sessions produce; error fields inject failures into
// the corresponding call. Safe for concurrent use.
type Stub struct {
	mu sync.Mutex

	// Replies maps a persona to the final assistant text of its sessions.
	Replies map[string]string

	// CreateErr fails CreateSession when set; SendErr and ListErr do the
	// same for their calls.
	CreateErr error
	SendErr   error
	ListErr   error

	sessions int
	personas map[string]string
	prompts  map[string]string
}

// NewStub returns a Stub scripted with per-persona replies.
func NewStub(replies map[string]string) *Stub {
	return &Stub{
		Replies:  replies,
		personas: make(map[string]string),
		prompts:  make(map[string]string),
	}
}

// CreateSession assigns sequential session identifiers (sess-1, sess-2, ...).
func (s *Stub) CreateSession(_ context.Context, persona string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	s.sessions++
	id := fmt.Sprintf("sess-%d", s.sessions)
	s.personas[id] = persona
	return id, nil
}

// SendMessage records the prompt as the session's latest.
func (s *Stub) SendMessage(_ context.Context, sessionID, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.prompts[sessionID] = prompt
	return nil
}

// ListMessages replays the session's prompt and the scripted reply for the
// session's persona.
func (s *Stub) ListMessages(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	reply := s.Replies[s.personas[sessionID]]
	return []Message{
		{Role: RoleUser, Parts: []Part{{Type: PartText, Text: s.prompts[sessionID]}}},
		{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: reply}}},
	}, nil
}

// Sessions reports how many sessions were created.
func (s *Stub) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Prompt returns the last prompt sent to the session.
func (s *Stub) Prompt(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[sessionID]
}
