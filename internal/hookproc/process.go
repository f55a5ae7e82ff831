// Package hookproc implements the Hook IPC layer: it
// spawns the hook binary once per invocation, feeds it a single JSON
// document on stdin, and parses its newline-delimited JSON stdout
// into a single merged result. This is the lowest layer that talks to
// the hook subprocess; internal/hookcall builds policy on top of it.
//
// The subprocess-with-timeout shape mirrors
// backend.LocalBackend.Execute (context.WithTimeout +
// exec.CommandContext, kill on deadline); the NDJSON accumulate-until-
// close shape mirrors backend.DaemonClient's bufio.Scanner
// request/response loop.
package hookproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// hookAbsentLog is the message logged the first time Invoke finds no
// hook binary at the configured path. Invoke signals absence by
// returning (map[string]any{}, false, nil), never a Go error.
const hookAbsentLog = "hook binary not found, invocation is a no-op"

// Invoker spawns a single hook binary, one process per Invoke call.
type Invoker struct {
	hookPath string
	timeout  time.Duration
	log      *zap.SugaredLogger

	warnedAbsent bool
}

// New creates an Invoker bound to a resolved hook path
// (<workspace>/hooks/<hook_name>) and a per-call timeout.
func New(hookPath string, timeout time.Duration, log *zap.SugaredLogger) *Invoker {
	return &Invoker{hookPath: hookPath, timeout: timeout, log: log}
}

// Invoke runs `<hook_path> <name>`, writes input as a single JSON
// document to stdin, and returns the merged NDJSON result from
// stdout. present reports whether the hook binary exists at all —
// when false, output is always an empty map and err is always nil.
func (inv *Invoker) Invoke(ctx context.Context, name string, input map[string]any) (output map[string]any, present bool, err error) {
	if _, statErr := os.Stat(inv.hookPath); statErr != nil {
		if !inv.warnedAbsent {
			inv.log.Debugw(hookAbsentLog, "path", inv.hookPath)
			inv.warnedAbsent = true
		}
		return map[string]any{}, false, nil
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, true, fmt.Errorf("marshal hook input: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, inv.hookPath, name)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, true, fmt.Errorf("open hook stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, true, fmt.Errorf("open hook stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, true, fmt.Errorf("open hook stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, true, fmt.Errorf("start hook %s: %w", name, err)
	}

	go func() {
		if _, werr := stdin.Write(payload); werr != nil {
			inv.log.Debugw("hook stdin write failed", "hook", name, "err", werr)
		}
		stdin.Close()
	}()

	var wg sync.WaitGroup
	var outBuf bytes.Buffer

	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := outBuf.ReadFrom(stdout); err != nil {
			inv.log.Debugw("hook stdout read failed", "hook", name, "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		inv.forwardStderr(name, stderr)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	if callCtx.Err() == context.DeadlineExceeded {
		return nil, true, fmt.Errorf("timeout")
	}
	if waitErr != nil {
		return nil, true, fmt.Errorf("exit %s", exitDescription(waitErr))
	}

	merged, err := mergeNDJSON(outBuf.Bytes(), func(logLine string) {
		inv.log.Debugw("hook log", "hook", name, "message", logLine)
	})
	if err != nil {
		return nil, true, fmt.Errorf("malformed hook output: %w", err)
	}
	return merged, true, nil
}

// forwardStderr relays every stderr line from the hook to the debug
// logger.
func (inv *Invoker) forwardStderr(hookName string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		inv.log.Debugw("hook stderr", "hook", hookName, "line", scanner.Text())
	}
}

// exitDescription renders an *exec.ExitError as "<code>" or, for a
// signal-terminated process, "signal: <name>".
func exitDescription(err error) string {
	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() == -1 && exitErr.ProcessState != nil {
			return exitErr.ProcessState.String()
		}
		return fmt.Sprintf("%d", exitErr.ExitCode())
	}
	return err.Error()
}

// mergeNDJSON parses buf as newline-delimited JSON objects. Lines
// containing a "log" key are forwarded to onLog and discarded;
// everything else is shallow-merged left-to-right (later lines win on
// key collision) into the returned accumulator.
func mergeNDJSON(buf []byte, onLog func(string)) (map[string]any, error) {
	acc := map[string]any{}

	scanner := bufio.NewScanner(bytes.NewReader(buf))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			return nil, fmt.Errorf("parse line %q: %w", string(line), err)
		}

		if logVal, ok := obj["log"]; ok {
			if logStr, ok := logVal.(string); ok {
				onLog(logStr)
			}
			continue
		}

		for k, v := range obj {
			acc[k] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan output: %w", err)
	}
	return acc, nil
}
