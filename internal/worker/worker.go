// Package worker defines the boundary to the session host that actually
// runs worker agents. The host is an opaque RPC-style collaborator offering
// create-session, send-message, and list-messages; everything this module
// knows about a worker's behavior arrives through its message transcript.
package worker

import "context"

// Message roles and content fragment types used by the session host.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"

	PartText = "text"
)

// Part is one content fragment of a transcript message. Fragments are
// ordered and tagged by type; only text fragments carry Text.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one entry in a session transcript.
type Message struct {
	// Role identifies the speaker, usually "user" or "assistant".
	Role string `json:"role"`

	// Error is the host's error marker: non-empty when the host failed to
	// produce this message's turn.
	Error string `json:"error,omitempty"`

	// Parts is the ordered content of the message.
	Parts []Part `json:"parts"`
}

// Text concatenates the message's text fragments in order.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// Client is a session host connection.
type Client interface {
	// CreateSession creates a session for the persona, or reuses the
	// host's existing session for it, and returns the session identifier.
	CreateSession(ctx context.Context, persona string) (string, error)

	// SendMessage submits a prompt to the session and returns once the
	// host has accepted it.
	SendMessage(ctx context.Context, sessionID, prompt string) error

	// ListMessages returns the session's transcript in order.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
}
