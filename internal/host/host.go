// Package host declares the external collaborator contract the
// plugin depends on but never implements: the chat host's session
// CRUD and prompting surface. Declaring it as a small interface here — rather than
// importing a concrete host SDK package — keeps internal/actions,
// internal/heartbeat, and internal/plugin free of a dependency on
// whatever host binds them at runtime.
//
// The shape mirrors agent.TraceRecorder: a narrow interface sitting at
// the boundary the agent loop doesn't own, satisfied by whatever the
// embedding program passes in.
package host

import "context"

// Session is the subset of host-owned session metadata the plugin
// needs to make routing decisions.
type Session struct {
	ID    string
	Title string
	Agent string
}

// SDK is the host surface the plugin calls out to. An implementation
// is supplied by the process embedding the plugin; internal/host
// defines no implementation of its own.
type SDK interface {
	// CreateSession creates a new chat session with the given title
	// and returns its host-assigned id.
	CreateSession(ctx context.Context, title string) (string, error)

	// ListSessions returns every session currently known to the host.
	ListSessions(ctx context.Context) ([]Session, error)

	// Send posts a message into a session without selecting a model,
	// the primitive behind ActionRecord's `send` variant.
	Send(ctx context.Context, sessionID, message string, synthetic bool) error

	// Prompt sends text to a session and blocks until the host has
	// produced (and the plugin has observed) a response. providerID
	// and modelID select which LLM backs the turn.
	Prompt(ctx context.Context, sessionID, agent, providerID, modelID, text string) error

	// PromptAsync enqueues a fire-and-forget prompt to a session
	// without waiting for a response.
	PromptAsync(ctx context.Context, sessionID, agent, providerID, modelID, text string) error
}
