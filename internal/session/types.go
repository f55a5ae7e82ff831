// Package session holds the plugin's cross-callback state: the
// per-session frozen system prompt, pending notifications, and the
// two global FIFOs that correlate the messages-transform/
// system-transform callback pair.
package session

// MessagePart is an opaque part of a message (text, tool call, etc).
// The plugin never interprets part contents beyond forwarding them;
// it is transported as a JSON-compatible map so it round-trips
// byte-for-byte through the hook subprocess boundary.
type MessagePart = map[string]any

// MessageRecord is the compact shape MessagesFifo stores for one
// captured message: role, originating agent, and parts.
type MessageRecord struct {
	Role  string        `json:"role"`
	Agent string        `json:"agent"`
	Parts []MessagePart `json:"parts"`
}

// Notification is an opaque object whose schema the hook owns. The
// plugin only ever stores, queues, and drains it.
type Notification = map[string]any

// ModelRef identifies an LLM provider/model pair, persisted across
// restarts so heartbeats can resume without a live user turn.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// IsZero reports whether the model reference is unset.
func (m ModelRef) IsZero() bool {
	return m.ProviderID == "" && m.ModelID == ""
}
