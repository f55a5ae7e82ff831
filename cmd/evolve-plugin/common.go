package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khimaros/opencode-evolve/internal/cliout"
	"github.com/khimaros/opencode-evolve/internal/config"
	"github.com/khimaros/opencode-evolve/internal/logx"
)

// printedError marks an error whose JSON envelope has already been
// written to stdout, so root.Execute doesn't also log it to stderr.
type printedError struct{ err error }

func (e printedError) Error() string { return e.err.Error() }

// cmdErr prints err as a failed cliout.Response and returns a sentinel
// so callers can propagate it through cobra without a second message.
func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	_ = cliout.PrintError(err)
	return printedError{err: err}
}

// resolveWorkspace returns the workspace directory a subcommand should
// operate against: the --workspace flag if set, otherwise
// config.ResolveWorkspace's environment-variable fallback.
func resolveWorkspace(cmd *cobra.Command) (string, error) {
	explicit, err := cmd.Flags().GetString("workspace")
	if err != nil {
		return "", err
	}
	if explicit != "" {
		return explicit, nil
	}
	ws := config.ResolveWorkspace()
	if ws == "" {
		return "", fmt.Errorf("no workspace resolved: set --workspace or OPENCODE_EVOLVE_WORKSPACE")
	}
	return ws, nil
}

// loadWorkspace resolves the workspace directory and its WorkspaceConfig
// together, the pair nearly every subcommand needs first.
func loadWorkspace(cmd *cobra.Command) (string, config.WorkspaceConfig, error) {
	ws, err := resolveWorkspace(cmd)
	if err != nil {
		return "", config.WorkspaceConfig{}, err
	}
	cfg, err := config.Load(ws)
	if err != nil {
		return "", config.WorkspaceConfig{}, err
	}
	return ws, cfg, nil
}

// commandLogger builds the logger a subcommand should use, honoring
// the persistent --debug flag.
func commandLogger(cmd *cobra.Command, cfg config.WorkspaceConfig) (*zap.SugaredLogger, error) {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, err
	}
	return logx.New(cfg.OutputGlyph, debug), nil
}
