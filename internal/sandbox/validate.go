// Package sandbox implements the hook validator: it
// mirrors the workspace's ancillary subtrees into a disposable
// temporary directory, installs a candidate hook there, and runs a
// user-supplied test command against the mirror. The candidate never
// sees the live workspace, so a bad candidate — or a crashing test
// command — cannot corrupt real state.
//
// The mirror-then-exec-then-unconditionally-clean-up shape mirrors
// backend.LocalBackend.Execute, which already stages a working
// directory per run and tears it down on every exit path.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AncillaryDirs are the workspace subtrees conventionally visible to
// a hook and therefore mirrored into every sandbox.
var AncillaryDirs = []string{"traits", "prompts"}

// Result is the outcome of one validation run. RunID identifies the
// run in logs even after its sandbox directory has been removed.
type Result struct {
	OK     bool
	Output string
	RunID  string
}

// Validator runs candidate hook content against a configured test
// command inside a disposable mirror of the workspace.
type Validator struct {
	workspace  string
	hookName   string
	testScript string
	timeout    time.Duration
	log        *zap.SugaredLogger
}

// New creates a Validator. testScript may be empty, in which case
// Validate always succeeds without running anything.
func New(workspace, hookName, testScript string, timeout time.Duration, log *zap.SugaredLogger) *Validator {
	return &Validator{workspace: workspace, hookName: hookName, testScript: testScript, timeout: timeout, log: log}
}

// Validate mirrors the workspace's ancillary subtrees plus candidate
// into a fresh temp directory, runs the configured test command
// against it, and removes the directory before returning — on every
// return path, including a panic recovered by the caller.
func (v *Validator) Validate(ctx context.Context, candidate []byte) (Result, error) {
	if v.testScript == "" {
		return Result{OK: true, Output: "no test configured"}, nil
	}

	runID := uuid.NewString()
	tmpDir, err := os.MkdirTemp("", "evolve-sandbox-"+runID+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create sandbox dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			v.log.Warnw("sandbox cleanup failed", "run_id", runID, "dir", tmpDir, "err", rmErr)
		}
	}()

	for _, sub := range AncillaryDirs {
		if err := mirrorDir(filepath.Join(v.workspace, sub), filepath.Join(tmpDir, sub)); err != nil {
			return Result{}, fmt.Errorf("mirror %s: %w", sub, err)
		}
	}

	hookPath := filepath.Join(tmpDir, "hooks", v.hookName)
	if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("create sandbox hooks dir: %w", err)
	}
	if err := os.WriteFile(hookPath, candidate, 0o755); err != nil {
		return Result{}, fmt.Errorf("write candidate hook: %w", err)
	}

	result := v.runTest(ctx, tmpDir)
	result.RunID = runID
	return result, nil
}

func (v *Validator) runTest(ctx context.Context, tmpDir string) Result {
	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, v.testScript, tmpDir)
	cmd.Env = append(os.Environ(), "OPENCODE_EVOLVE_WORKSPACE="+tmpDir)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{OK: false, Output: out.String() + "\nerror: timeout"}
	}
	if err != nil {
		return Result{OK: false, Output: out.String() + "\nerror: " + err.Error()}
	}
	return Result{OK: true, Output: out.String()}
}

// mirrorDir copies src into dst recursively. A missing src is not an
// error — a workspace without a `traits/` or `prompts/` subtree
// simply contributes nothing to the mirror.
func mirrorDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if fi.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, fi.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
