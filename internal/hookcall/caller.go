// Package hookcall implements the Hook Caller: it wraps
// internal/hookproc with the policy a bare subprocess invocation
// doesn't know about — stitching cached session history onto the
// input, logging call duration, and the recover cascade that
// distinguishes hooks whose failure is safe to ignore from hooks
// whose failure triggers one call to the `recover` hook (the failed
// hook itself is not re-run).
//
// The cascade shape mirrors the middleware chain in
// server/middleware.go, which also treats a failed step as "log and
// substitute a safe default" rather than aborting the request.
package hookcall

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/khimaros/opencode-evolve/internal/session"
)

// observational names the hooks whose failure is purely informational:
// the plugin already has a sensible fallback (drop the observation)
// and invoking `recover` for them would just generate noise on every
// tool call.
var observational = map[string]bool{
	"tool_before":         true,
	"tool_after":          true,
	"observe_message":     true,
	"format_notification": true,
}

// Invoker is the subset of hookproc.Invoker that Caller depends on,
// named here so tests can substitute a fake.
type Invoker interface {
	Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, bool, error)
}

// HistoryProvider looks up the cached message history for a session,
// so Caller can attach `history` to hook input without depending on
// internal/session's storage details.
type HistoryProvider interface {
	History(sessionID string) ([]session.MessageRecord, bool)
}

// Caller dispatches named hook calls and applies the recover cascade.
type Caller struct {
	inv     Invoker
	log     *zap.SugaredLogger
	history HistoryProvider
}

// New creates a Caller. history may be nil, in which case no hook
// call is ever given a `history` field.
func New(inv Invoker, history HistoryProvider, log *zap.SugaredLogger) *Caller {
	return &Caller{inv: inv, log: log, history: history}
}

// Call invokes the named hook with ctxFields merged into the input
// alongside the mandatory `hook` field and, when available, the
// session's cached history. On failure, observational hooks resolve
// to an empty map; every other hook triggers exactly one `recover`
// call (never recursively) and then itself resolves to an empty map —
// the caller of Call never sees a Go error.
func (c *Caller) Call(ctx context.Context, name string, ctxFields map[string]any, sessionID string) map[string]any {
	start := time.Now()
	out, err := c.invoke(ctx, name, ctxFields, sessionID)
	elapsed := time.Since(start)

	if err == nil {
		c.log.Debugw("hook call", "hook", name, "duration_ms", elapsed.Milliseconds())
		return out
	}

	c.log.Warnw("hook call failed", "hook", name, "duration_ms", elapsed.Milliseconds(), "err", err)

	if observational[name] || name == "recover" {
		return map[string]any{}
	}

	c.recover(ctx, name, err)
	return map[string]any{}
}

// invoke performs the actual hookproc round trip, attaching history
// when the caller's HistoryProvider has any for sessionID.
func (c *Caller) invoke(ctx context.Context, name string, ctxFields map[string]any, sessionID string) (map[string]any, error) {
	input := map[string]any{"hook": name}
	for k, v := range ctxFields {
		input[k] = v
	}
	if c.history != nil && sessionID != "" {
		if hist, ok := c.history.History(sessionID); ok {
			input["history"] = hist
		}
	}

	out, _, err := c.inv.Invoke(ctx, name, input)
	return out, err
}

// recover invokes the `recover` hook exactly once for a failed hook
// call. Its own result is discarded regardless of outcome, so the
// original caller of Call still sees {} either way.
func (c *Caller) recover(ctx context.Context, failedHook string, failure error) {
	_, err := c.invoke(ctx, "recover", map[string]any{
		"failed_hook": failedHook,
		"error":       failure.Error(),
	}, "")
	if err != nil {
		c.log.Warnw("recover hook itself failed", "failed_hook", failedHook, "err", err)
	}
}
