// Package plugin binds the host's lifecycle callbacks — messages
// transform, system transform, chat-message observation, tool
// before/after, and session compacting — to the lower layers
// (internal/hookcall, internal/session, internal/tools,
// internal/actions, internal/heartbeat), preserving the ordering and
// FIFO-correlation contract the host's cycle ordering requires between
// messages-transform and system-transform.
//
// Each callback method here is a direct translation of one recognized
// hook's contract into calls against the lower layers; the package has
// no behavior of its own beyond that translation and the bookkeeping
// (known sessions, deferred-dirty workspace commit) the translation
// needs.
package plugin

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khimaros/opencode-evolve/internal/actions"
	"github.com/khimaros/opencode-evolve/internal/hookcall"
	"github.com/khimaros/opencode-evolve/internal/host"
	"github.com/khimaros/opencode-evolve/internal/session"
	"github.com/khimaros/opencode-evolve/internal/tools"
	"github.com/khimaros/opencode-evolve/internal/workspace"
)

// AgentMarker is the sentinel substring in the inbound system array
// that signals the plugin should take ownership of a cycle.
const AgentMarker = "<~ PERSONA AGENT MARKER ~>"

// knownSession tracks enough about a session to route fire-and-forget
// continuations and cross-session notifications to it.
type knownSession struct {
	agent string
}

// Plugin binds every lower layer together for one hook's lifetime.
type Plugin struct {
	store    *session.Store
	caller   *hookcall.Caller
	snap     *workspace.Snapshotter
	toolDeps tools.Dependencies
	registry *tools.Registry
	actor    *actions.Executor
	sdk      host.SDK
	log      *zap.SugaredLogger

	heartbeatAgent string
	heartbeatTitle string

	mu            sync.Mutex
	knownSessions map[string]knownSession
	dirty         bool
}

// Dependencies bundles every collaborator Plugin needs.
type Dependencies struct {
	Store          *session.Store
	Caller         *hookcall.Caller
	Snapshot       *workspace.Snapshotter
	ToolDeps       tools.Dependencies
	Actor          *actions.Executor
	SDK            host.SDK
	HeartbeatAgent string
	HeartbeatTitle string
	Log            *zap.SugaredLogger
}

// New creates a Plugin. Call Discover before relying on Registry.
// ToolDeps.Notify is set to the Plugin itself when left nil, so
// built-in and hook-declared tools fan notifications out through the
// same known-sessions bookkeeping as observe_message and heartbeat.
func New(deps Dependencies) *Plugin {
	p := &Plugin{
		store:          deps.Store,
		caller:         deps.Caller,
		snap:           deps.Snapshot,
		toolDeps:       deps.ToolDeps,
		actor:          deps.Actor,
		sdk:            deps.SDK,
		heartbeatAgent: deps.HeartbeatAgent,
		heartbeatTitle: deps.HeartbeatTitle,
		log:            deps.Log,
		knownSessions:  map[string]knownSession{},
	}
	if p.toolDeps.Notify == nil {
		p.toolDeps.Notify = p
	}
	return p
}

// MarkDirty satisfies heartbeat.DirtyMarker: it defers a workspace
// commit to the next convenient point rather than committing inline.
func (p *Plugin) MarkDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
}

// CommitIfDirty commits the workspace if anything marked it dirty
// since the last commit, then clears the flag regardless of outcome.
func (p *Plugin) CommitIfDirty(ctx context.Context, message string) {
	p.mu.Lock()
	dirty := p.dirty
	p.dirty = false
	p.mu.Unlock()

	if dirty && p.snap != nil {
		p.snap.Commit(ctx, message)
	}
}

// BroadcastNotification satisfies tools.NotifyBroadcaster and
// heartbeat.NotifyBroadcaster: it enqueues n as a PendingNotification
// for every known session except source ("a notification
// is never delivered back to its source session").
func (p *Plugin) BroadcastNotification(source string, n session.Notification) {
	if _, ok := n["id"]; !ok {
		n = cloneNotification(n)
		n["id"] = uuid.NewString()
	}

	p.mu.Lock()
	targets := make([]string, 0, len(p.knownSessions))
	for id := range p.knownSessions {
		if id != source {
			targets = append(targets, id)
		}
	}
	p.mu.Unlock()

	for _, id := range targets {
		p.store.AddPendingNotification(id, n)
	}
}

func cloneNotification(n session.Notification) session.Notification {
	out := make(session.Notification, len(n)+1)
	for k, v := range n {
		out[k] = v
	}
	return out
}

func (p *Plugin) noteSession(sessionID, agent string) {
	if sessionID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.knownSessions[sessionID] = knownSession{agent: agent}
}

func (p *Plugin) agentFor(sessionID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ks, ok := p.knownSessions[sessionID]; ok && ks.agent != "" {
		return ks.agent
	}
	return p.heartbeatAgent
}

// Discover calls the hook's `discover` hook and builds the tool
// registry from its declared tools. It is idempotent to call more
// than once; later calls replace the registry.
func (p *Plugin) Discover(ctx context.Context) {
	out := p.caller.Call(ctx, "discover", map[string]any{}, "")
	declared := decodeToolDefinitions(out["tools"])
	p.registry = tools.Build(p.toolDeps, declared)
}

// Registry returns the currently built tool registry, or nil before
// the first Discover call.
func (p *Plugin) Registry() *tools.Registry {
	return p.registry
}

func decodeToolDefinitions(raw any) []tools.ToolDefinition {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	defs := make([]tools.ToolDefinition, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		def := tools.ToolDefinition{}
		def.Name, _ = obj["name"].(string)
		def.Description, _ = obj["description"].(string)
		if params, ok := obj["parameters"].(map[string]any); ok {
			def.Parameters = map[string]string{}
			for k, v := range params {
				if s, ok := v.(string); ok {
					def.Parameters[k] = s
				}
			}
		}
		if def.Name != "" {
			defs = append(defs, def)
		}
	}
	return defs
}

// MessagesTransform captures the current message list as the next
// snapshot for SystemTransform to consume, then folds in one pending
// injection if the queue has one.
func (p *Plugin) MessagesTransform(messages []session.MessageRecord) []session.MessageRecord {
	snapshot := make([]session.MessageRecord, len(messages))
	copy(snapshot, messages)
	p.store.PushMessagesSnapshot(snapshot)

	if parts, ok := p.store.PopInjection(); ok {
		messages = append(messages, session.MessageRecord{Role: "user", Parts: parts})
	}
	return messages
}

// SystemTransform injects the marker-triggered system state into
// systemIn when the marker is present, recording the session and model
// it observed along the way.
func (p *Plugin) SystemTransform(ctx context.Context, sessionID string, model session.ModelRef, agent string, systemIn []string) []string {
	if !containsMarker(systemIn) {
		return systemIn
	}
	p.noteSession(sessionID, agent)
	p.store.RecordModel(model)

	if snapshot, ok := p.store.PopMessagesSnapshot(); ok {
		p.store.SetHistory(sessionID, snapshot)
	}

	if frozen, ok := p.store.FrozenPrompt(sessionID); ok {
		p.injectPendingNotifications(ctx, sessionID)
		return frozen
	}

	out := p.caller.Call(ctx, "mutate_request", map[string]any{
		"session": map[string]any{"id": sessionID},
	}, sessionID)

	if sys, ok := decodeStringSlice(out["system"]); ok && len(sys) > 0 {
		p.store.FreezePrompt(sessionID, sys)
		p.injectPendingNotifications(ctx, sessionID)
		return sys
	}

	p.injectPendingNotifications(ctx, sessionID)
	return systemIn
}

// injectPendingNotifications drains PendingNotifications for sessionID
// and, if format_notification yields a message, pushes it onto
// InjectionFifo as a single synthetic text part.
func (p *Plugin) injectPendingNotifications(ctx context.Context, sessionID string) {
	notifications, ok := p.store.TakePendingNotifications(sessionID)
	if !ok {
		return
	}

	drained := make([]any, len(notifications))
	for i, n := range notifications {
		drained[i] = n
	}
	out := p.caller.Call(ctx, "format_notification", map[string]any{
		"notifications": drained,
	}, "")

	message, ok := out["message"].(string)
	if !ok || message == "" {
		return
	}

	text := fmt.Sprintf("<internal-notification>\n%s\n</internal-notification>", message)
	p.store.PushInjection([]session.MessagePart{{"type": "text", "text": text}})
}

func containsMarker(system []string) bool {
	for _, s := range system {
		if strings.Contains(s, AgentMarker) {
			return true
		}
	}
	return false
}

// modifiedFiles reports whether a hook's `modified` field names at
// least one file. The field is the JSON array of modified paths
// note_write returns, not a boolean.
func modifiedFiles(raw any) bool {
	list, ok := raw.([]any)
	return ok && len(list) > 0
}

func decodeStringSlice(raw any) ([]string, bool) {
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// ObserveMessage forwards one completed assistant turn to
// `observe_message`, applies its side effects, and — when the turn had
// no tool-call parts — invokes `idle` and, on a non-empty `continue`,
// dispatches exactly one fire-and-forget prompt back to the same
// session.
func (p *Plugin) ObserveMessage(ctx context.Context, sessionID, agent string, model session.ModelRef, reasoning string, toolCalls []session.MessagePart, answer string) {
	p.noteSession(sessionID, agent)
	p.store.RecordModel(model)

	out := p.caller.Call(ctx, "observe_message", map[string]any{
		"session":    map[string]any{"id": sessionID, "agent": agent},
		"reasoning":  reasoning,
		"tool_calls": toolCalls,
		"answer":     answer,
	}, sessionID)
	p.applySideEffects(ctx, sessionID, out)

	if len(toolCalls) > 0 {
		return
	}

	idleOut := p.caller.Call(ctx, "idle", map[string]any{
		"session": map[string]any{"id": sessionID, "agent": agent},
		"answer":  answer,
	}, sessionID)

	cont, ok := idleOut["continue"].(string)
	if !ok || cont == "" {
		return
	}

	dispatchAgent := p.agentFor(sessionID)
	if err := p.sdk.PromptAsync(ctx, sessionID, dispatchAgent, model.ProviderID, model.ModelID, cont); err != nil {
		p.log.Warnw("idle continuation dispatch failed", "session", sessionID, "err", err)
	}
}

// applySideEffects applies the modified/notify/actions fields a hook
// result may carry, for the observe_message call site. The heartbeat
// scheduler applies the same fields itself.
func (p *Plugin) applySideEffects(ctx context.Context, sourceSessionID string, out map[string]any) {
	if modifiedFiles(out["modified"]) {
		p.MarkDirty()
	}
	if raw, ok := out["notify"].([]any); ok {
		for _, item := range raw {
			if obj, ok := item.(map[string]any); ok {
				p.BroadcastNotification(sourceSessionID, obj)
			}
		}
	}
	if raw, ok := out["actions"].([]any); ok && p.actor != nil {
		p.actor.Execute(ctx, raw)
	}
}

// ToolBefore and ToolAfter are the observational hooks invoked around
// every tool execution. Their return values carry no contract the
// plugin consumes; they exist so the hook script can witness the
// call (recognized hooks list).
func (p *Plugin) ToolBefore(ctx context.Context, sessionID, toolName string, args map[string]any) {
	p.caller.Call(ctx, "tool_before", map[string]any{
		"tool":    toolName,
		"args":    args,
		"session": map[string]any{"id": sessionID},
	}, sessionID)
}

func (p *Plugin) ToolAfter(ctx context.Context, sessionID, toolName string, args map[string]any, result string) {
	p.caller.Call(ctx, "tool_after", map[string]any{
		"tool":    toolName,
		"args":    args,
		"result":  result,
		"session": map[string]any{"id": sessionID},
	}, sessionID)
}

// SessionCompacting implements the `compacting` hook: if it returns a
// non-empty `prompt`, the host uses it in place of its own compaction
// prompt.
func (p *Plugin) SessionCompacting(ctx context.Context, sessionID string) (string, bool) {
	out := p.caller.Call(ctx, "compacting", map[string]any{
		"session": map[string]any{"id": sessionID},
	}, sessionID)
	prompt, ok := out["prompt"].(string)
	return prompt, ok && prompt != ""
}
