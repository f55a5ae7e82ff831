package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khimaros/opencode-evolve/internal/cliout"
	"github.com/khimaros/opencode-evolve/internal/hookcall"
	"github.com/khimaros/opencode-evolve/internal/hookproc"
	"github.com/khimaros/opencode-evolve/internal/session"
)

// replayStep is one line of a replay fixture: a hook name, the
// context fields to merge into its call, and the session to call it
// as. SessionID is optional — steps that omit it replay a
// session-less hook call (discover, recover, format_notification).
type replayStep struct {
	Hook      string         `json:"hook"`
	Context   map[string]any `json:"context"`
	SessionID string         `json:"session_id"`
}

// newReplayCmd feeds a recorded sequence of hook calls through the
// same internal/hookcall.Caller the plugin uses live, against the
// workspace's real hook binary, and prints each call's output. This
// is how a hook author exercises a scenario fixture without a running
// host.
func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a recorded sequence of hook calls against the workspace's hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadWorkspace(cmd)
			if err != nil {
				return cmdErr(err)
			}
			log, err := commandLogger(cmd, cfg)
			if err != nil {
				return cmdErr(err)
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return cmdErr(fmt.Errorf("read fixture: %w", err))
			}
			var steps []replayStep
			if err := json.Unmarshal(raw, &steps); err != nil {
				return cmdErr(fmt.Errorf("parse fixture: %w", err))
			}

			store := session.New(cfg.RuntimeStatePath(), log)
			invoker := hookproc.New(cfg.HookPath(), cfg.HookTimeout(), log)
			caller := hookcall.New(invoker, store, log)

			type stepResult struct {
				Hook      string         `json:"hook"`
				SessionID string         `json:"session_id,omitempty"`
				Output    map[string]any `json:"output"`
			}
			results := make([]stepResult, 0, len(steps))

			for _, step := range steps {
				out := caller.Call(cmd.Context(), step.Hook, step.Context, step.SessionID)
				results = append(results, stepResult{Hook: step.Hook, SessionID: step.SessionID, Output: out})
			}

			type resp struct {
				Fixture string       `json:"fixture"`
				Steps   []stepResult `json:"steps"`
			}
			return cliout.PrintSuccess(resp{Fixture: args[0], Steps: results})
		},
	}
	return cmd
}
