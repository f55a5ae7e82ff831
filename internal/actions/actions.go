// Package actions implements the Action Executor: it turns the
// `actions` array a hook result may carry into calls against the host
// SDK. One action failing is logged and does not stop the rest from
// running, matching its "Action-failure" policy.
package actions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khimaros/opencode-evolve/internal/host"
)

// Executor dispatches ActionRecord values against a host.SDK.
type Executor struct {
	sdk host.SDK
	log *zap.SugaredLogger
}

// New creates an Executor.
func New(sdk host.SDK, log *zap.SugaredLogger) *Executor {
	return &Executor{sdk: sdk, log: log}
}

// Execute runs every action in order. Each action is a decoded JSON
// object with a `type` discriminator of `send` or `create_session`;
// an unrecognized type or a malformed record is logged and skipped.
// A failing SDK call is logged; the remaining actions still run.
func (e *Executor) Execute(ctx context.Context, rawActions []any) {
	for _, raw := range rawActions {
		rec, ok := raw.(map[string]any)
		if !ok {
			e.log.Warnw("action executor: skipping non-object action", "action", raw)
			continue
		}
		actionID := uuid.NewString()
		if err := e.executeOne(ctx, rec); err != nil {
			e.log.Warnw("action executor: action failed", "action_id", actionID, "action", rec, "err", err)
		}
	}
}

func (e *Executor) executeOne(ctx context.Context, rec map[string]any) error {
	kind, _ := rec["type"].(string)
	switch kind {
	case "send":
		sessionID, _ := rec["session_id"].(string)
		message, _ := rec["message"].(string)
		if sessionID == "" || message == "" {
			return fmt.Errorf("send action missing session_id or message")
		}
		synthetic := true
		if v, ok := rec["synthetic"].(bool); ok {
			synthetic = v
		}
		return e.sdk.Send(ctx, sessionID, message, synthetic)

	case "create_session":
		title, _ := rec["title"].(string)
		if title == "" {
			return fmt.Errorf("create_session action missing title")
		}
		_, err := e.sdk.CreateSession(ctx, title)
		return err

	default:
		return fmt.Errorf("unrecognized action type %q", kind)
	}
}
