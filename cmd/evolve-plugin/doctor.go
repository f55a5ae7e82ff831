package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/khimaros/opencode-evolve/internal/cliout"
)

// newDoctorCmd reports the health of one workspace: whether the hook
// binary exists and is executable, whether the workspace git repo is
// initialized, and whether the configured sandbox test script (if
// any) resolves to a real file. It never mutates the workspace.
func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check workspace, hook, and sandbox configuration health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, cfg, err := loadWorkspace(cmd)
			if err != nil {
				return cmdErr(err)
			}

			type hookInfo struct {
				Path       string `json:"path"`
				Exists     bool   `json:"exists"`
				Executable bool   `json:"executable"`
			}
			type sandboxInfo struct {
				Configured bool   `json:"configured"`
				Script     string `json:"script,omitempty"`
				Exists     bool   `json:"exists"`
			}
			type resp struct {
				Workspace string      `json:"workspace"`
				GitRepo   bool        `json:"git_repo"`
				Hook      hookInfo    `json:"hook"`
				Sandbox   sandboxInfo `json:"sandbox"`
				Heartbeat string      `json:"heartbeat_title"`
				HookStem  string      `json:"hook_stem"`
				Hint      string      `json:"hint,omitempty"`
			}

			result := resp{
				Workspace: ws,
				Heartbeat: cfg.HeartbeatTitle,
				HookStem:  cfg.HookStem(),
			}

			if _, statErr := os.Stat(filepath.Join(ws, ".git")); statErr == nil {
				result.GitRepo = true
			}

			hookPath := cfg.HookPath()
			result.Hook.Path = hookPath
			if info, statErr := os.Stat(hookPath); statErr == nil {
				result.Hook.Exists = true
				result.Hook.Executable = info.Mode()&0o111 != 0
			}

			if cfg.TestScript != "" {
				result.Sandbox.Configured = true
				scriptPath := filepath.Join(ws, cfg.TestScript)
				result.Sandbox.Script = scriptPath
				if _, statErr := os.Stat(scriptPath); statErr == nil {
					result.Sandbox.Exists = true
				}
			}

			if !result.Hook.Exists {
				result.Hint = "no hook binary found; hook invocations will be treated as a no-op"
			} else if !result.Hook.Executable {
				result.Hint = "hook file exists but is not executable"
			}

			return cliout.PrintSuccess(result)
		},
	}
	return cmd
}
