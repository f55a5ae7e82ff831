package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khimaros/opencode-evolve/internal/hookcall"
	"github.com/khimaros/opencode-evolve/internal/logx"
	"github.com/khimaros/opencode-evolve/internal/sandbox"
	"github.com/khimaros/opencode-evolve/internal/session"
	"github.com/khimaros/opencode-evolve/internal/workspace"
)

type fakeInvoker struct {
	results map[string]map[string]any
	errs    map[string]error
	calls   []map[string]any
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, input map[string]any) (map[string]any, bool, error) {
	f.calls = append(f.calls, input)
	if err, ok := f.errs[name]; ok {
		return map[string]any{}, true, err
	}
	return f.results[name], true, nil
}

type fakeBroadcaster struct {
	calls []struct {
		source string
		n      session.Notification
	}
}

func (f *fakeBroadcaster) BroadcastNotification(source string, n session.Notification) {
	f.calls = append(f.calls, struct {
		source string
		n      session.Notification
	}{source, n})
}

func newTestDeps(t *testing.T, inv *fakeInvoker, broadcaster NotifyBroadcaster, testScript string) (Dependencies, string) {
	workspaceDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workspaceDir, "hooks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspaceDir, "hooks", "evolve.py"), []byte("original"), 0o755))

	caller := hookcall.New(inv, nil, logx.Nop())
	validator := sandbox.New(workspaceDir, "evolve.py", testScript, time.Second, logx.Nop())
	snap := workspace.New(workspaceDir, time.Second, logx.Nop())

	return Dependencies{
		Workspace: workspaceDir,
		HookStem:  "evolve",
		HookPath:  filepath.Join(workspaceDir, "hooks", "evolve.py"),
		Caller:    caller,
		Validator: validator,
		Snapshot:  snap,
		Notify:    broadcaster,
		Log:       logx.Nop(),
	}, workspaceDir
}

func TestBuild_RegistersDeclaredAndBuiltinsWithStemPrefix(t *testing.T) {
	deps, _ := newTestDeps(t, &fakeInvoker{}, nil, "")
	reg := Build(deps, []ToolDefinition{{Name: "search", Description: "search traits"}})

	_, ok := reg.Get("evolve_search")
	assert.True(t, ok)
	_, ok = reg.Get("evolve_prompt_read")
	assert.True(t, ok)
	_, ok = reg.Get("evolve_hook_patch")
	assert.True(t, ok)
}

func TestExecuteDeclared_ReturnsResultAndAppliesNotify(t *testing.T) {
	inv := &fakeInvoker{results: map[string]map[string]any{
		"execute_tool": {"result": "searched", "notify": []any{map[string]any{"type": "ping"}}},
	}}
	bc := &fakeBroadcaster{}
	deps, _ := newTestDeps(t, inv, bc, "")
	reg := Build(deps, []ToolDefinition{{Name: "search"}})

	tool, _ := reg.Get("evolve_search")
	out, err := tool.Execute(context.Background(), map[string]any{"q": "x"}, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "searched", out)
	require.Len(t, bc.calls, 1)
	assert.Equal(t, "sess-1", bc.calls[0].source)
}

func TestExecuteDeclared_DefaultsResultToDone(t *testing.T) {
	inv := &fakeInvoker{results: map[string]map[string]any{"execute_tool": {}}}
	deps, _ := newTestDeps(t, inv, nil, "")
	reg := Build(deps, []ToolDefinition{{Name: "search"}})

	tool, _ := reg.Get("evolve_search")
	out, err := tool.Execute(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestPromptReadWrite_RoundTrips(t *testing.T) {
	deps, workspaceDir := newTestDeps(t, &fakeInvoker{}, &fakeBroadcaster{}, "")
	reg := Build(deps, nil)

	write, _ := reg.Get("evolve_prompt_write")
	out, err := write.Execute(context.Background(), map[string]any{"name": "a.md", "content": "hello"}, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	raw, err := os.ReadFile(filepath.Join(workspaceDir, "prompts", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))

	read, _ := reg.Get("evolve_prompt_read")
	got, err := read.Execute(context.Background(), map[string]any{"name": "a.md"}, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestPromptRead_MissingFileReturnsTextualError(t *testing.T) {
	deps, _ := newTestDeps(t, &fakeInvoker{}, nil, "")
	reg := Build(deps, nil)

	read, _ := reg.Get("evolve_prompt_read")
	out, err := read.Execute(context.Background(), map[string]any{"name": "missing.md"}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "file not found")
}

func TestPromptList_SortsMarkdownFilesOnly(t *testing.T) {
	deps, workspaceDir := newTestDeps(t, &fakeInvoker{}, nil, "")
	require.NoError(t, os.MkdirAll(filepath.Join(workspaceDir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspaceDir, "prompts", "b.md"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(workspaceDir, "prompts", "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(workspaceDir, "prompts", "ignore.txt"), []byte("x"), 0o644))

	reg := Build(deps, nil)
	list, _ := reg.Get("evolve_prompt_list")
	out, err := list.Execute(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "a.md\nb.md", out)
}

func TestPromptPatch_AmbiguousMatchReturnsTextualErrorWithoutWriting(t *testing.T) {
	deps, workspaceDir := newTestDeps(t, &fakeInvoker{}, nil, "")
	require.NoError(t, os.MkdirAll(filepath.Join(workspaceDir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspaceDir, "prompts", "a.md"), []byte("aa bb aa"), 0o644))

	reg := Build(deps, nil)
	p, _ := reg.Get("evolve_prompt_patch")
	out, err := p.Execute(context.Background(), map[string]any{"name": "a.md", "old": "aa", "new": "zz"}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "matches for old_string")

	raw, _ := os.ReadFile(filepath.Join(workspaceDir, "prompts", "a.md"))
	assert.Equal(t, "aa bb aa", string(raw), "ambiguous patch must not modify the file")
}

func TestHookWrite_ValidationFailureRefusesInstall(t *testing.T) {
	scriptDir := t.TempDir()
	testScript := filepath.Join(scriptDir, "test.sh")
	require.NoError(t, os.WriteFile(testScript, []byte("#!/bin/sh\nexit 1\n"), 0o755))

	deps, _ := newTestDeps(t, &fakeInvoker{}, nil, testScript)
	reg := Build(deps, nil)

	write, _ := reg.Get("evolve_hook_write")
	out, err := write.Execute(context.Background(), map[string]any{"content": "bad"}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "validation failed:"))

	raw, _ := os.ReadFile(deps.HookPath)
	assert.Equal(t, "original", string(raw), "on-disk hook must be unchanged after a failed validation")
}

func TestHookWrite_ValidationSuccessInstalls(t *testing.T) {
	deps, _ := newTestDeps(t, &fakeInvoker{}, nil, "")
	reg := Build(deps, nil)

	write, _ := reg.Get("evolve_hook_write")
	out, err := write.Execute(context.Background(), map[string]any{"content": "new content"}, "")
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	raw, err := os.ReadFile(deps.HookPath)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(raw))
}

func TestHookPatch_AmbiguousMatchNeverValidatesOrInstalls(t *testing.T) {
	deps, _ := newTestDeps(t, &fakeInvoker{}, nil, "")
	require.NoError(t, os.WriteFile(deps.HookPath, []byte("aa aa"), 0o755))

	reg := Build(deps, nil)
	p, _ := reg.Get("evolve_hook_patch")
	out, err := p.Execute(context.Background(), map[string]any{"old": "aa", "new": "zz"}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "matches for old_string")

	raw, _ := os.ReadFile(deps.HookPath)
	assert.Equal(t, "aa aa", string(raw))
}
