// Package workspace manages the content-versioned repository that
// backs the plugin's workspace: it ensures a repo exists, configures
// a commit identity, and commits staged changes after a tool or hook
// mutates files on disk. It drives the `git` binary directly, the same
// way backend/local.go shells out to external binaries rather than
// vendoring a VCS implementation.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Snapshotter commits staged changes under a workspace directory. It
// is safe to construct multiple times against the same directory —
// Ensure is idempotent.
type Snapshotter struct {
	workspace string
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// New creates a Snapshotter rooted at workspace.
func New(workspace string, timeout time.Duration, log *zap.SugaredLogger) *Snapshotter {
	return &Snapshotter{workspace: workspace, timeout: timeout, log: log}
}

// Ensure initializes the repository and commit identity if they don't
// already exist. Safe to call on every plugin load.
func (s *Snapshotter) Ensure(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.workspace, ".git")); err == nil {
		return nil
	}

	if out, err := s.run(ctx, "init"); err != nil {
		return fmt.Errorf("git init: %w (%s)", err, out)
	}
	if out, err := s.run(ctx, "config", "user.email", "evolve@local"); err != nil {
		return fmt.Errorf("git config user.email: %w (%s)", err, out)
	}
	if out, err := s.run(ctx, "config", "user.name", "evolve"); err != nil {
		return fmt.Errorf("git config user.name: %w (%s)", err, out)
	}
	return nil
}

// Commit stages every change under the workspace, untracked files
// included, and commits
// it with message. No-ops (without error) when the working tree has
// nothing staged — a commit failure is logged and swallowed per
// its "version-control-failure" policy: it never fails a
// user-visible operation.
func (s *Snapshotter) Commit(ctx context.Context, message string) {
	if out, err := s.run(ctx, "add", "-A"); err != nil {
		s.log.Warnw("snapshot: git add failed", "err", err, "output", out)
		return
	}

	dirty, err := s.run(ctx, "status", "--porcelain")
	if err != nil {
		s.log.Warnw("snapshot: git status failed", "err", err)
		return
	}
	if strings.TrimSpace(dirty) == "" {
		return
	}

	if out, err := s.run(ctx, "commit", "-m", message); err != nil {
		s.log.Warnw("snapshot: git commit failed", "err", err, "output", out)
	}
}

func (s *Snapshotter) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.workspace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
