package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khimaros/opencode-evolve/internal/cliout"
	"github.com/khimaros/opencode-evolve/internal/sandbox"
)

// newValidateCmd runs the sandbox test command against a candidate
// hook file, the same check internal/tools.Registry's hook_write and
// hook_patch built-ins run before installing a hook edit — exposed
// here so an operator can dry-run it outside of a live host.
func newValidateCmd() *cobra.Command {
	var candidatePath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the configured sandbox test against a candidate hook file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, cfg, err := loadWorkspace(cmd)
			if err != nil {
				return cmdErr(err)
			}
			log, err := commandLogger(cmd, cfg)
			if err != nil {
				return cmdErr(err)
			}

			path := candidatePath
			if path == "" {
				path = cfg.HookPath()
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return cmdErr(fmt.Errorf("read candidate hook %s: %w", path, err))
			}

			validator := sandbox.New(ws, cfg.Hook, cfg.TestScript, cfg.HookTimeout(), log)
			result, err := validator.Validate(cmd.Context(), content)
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Path   string `json:"path"`
				RunID  string `json:"run_id,omitempty"`
				OK     bool   `json:"ok"`
				Output string `json:"output"`
			}
			return cliout.PrintSuccess(resp{Path: path, RunID: result.RunID, OK: result.OK, Output: result.Output})
		},
	}

	cmd.Flags().StringVar(&candidatePath, "file", "", "Candidate hook file to validate (default: the configured hook on disk)")
	return cmd
}
