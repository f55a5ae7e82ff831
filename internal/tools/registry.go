// Package tools implements the tool registry: it turns the hook's
// `discover` response into host-facing tool descriptors, adds the
// fixed set of built-in prompt/hook read/write/patch/validate tools,
// and executes either kind when the host calls them.
//
// The Tool interface and map-backed Registry mirror agent.Tool /
// agent.ToolRegistry (Name/Description/Parameters/Execute,
// Register/Get/List/All) — adapted here so Execute never returns a Go
// error for a domain-level failure (unknown tool, bad args, patch
// ambiguity); those are encoded in the returned string, matching its
// fail-safe tool policy.
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/khimaros/opencode-evolve/internal/hookcall"
	"github.com/khimaros/opencode-evolve/internal/patch"
	"github.com/khimaros/opencode-evolve/internal/sandbox"
	"github.com/khimaros/opencode-evolve/internal/session"
	"github.com/khimaros/opencode-evolve/internal/workspace"
)

// ToolDefinition describes a single hook-declared tool, as reported
// in the `tools` field of the hook's `discover` response.
type ToolDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// Tool is a single host-facing tool: a registered name, description,
// parameter schema, and an executor.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]string
	Execute(ctx context.Context, args map[string]any, sessionID string) (string, error)
}

// funcTool adapts a plain function into a Tool, the same shape as
// FuncTool wrapping a closure instead of requiring a named type per
// tool.
type funcTool struct {
	name        string
	description string
	parameters  map[string]string
	fn          func(ctx context.Context, args map[string]any, sessionID string) (string, error)
}

func (f *funcTool) Name() string                 { return f.name }
func (f *funcTool) Description() string          { return f.description }
func (f *funcTool) Parameters() map[string]string { return f.parameters }

func (f *funcTool) Execute(ctx context.Context, args map[string]any, sessionID string) (string, error) {
	return f.fn(ctx, args, sessionID)
}

// NotifyBroadcaster enqueues a notification for every live session
// except source — the cross-session fan-out side effect tools and
// hook calls can trigger.
type NotifyBroadcaster interface {
	BroadcastNotification(source string, n session.Notification)
}

// Registry holds every tool currently registered with the host: the
// hook's declared tools plus the fixed built-ins, all prefixed with
// the hook's stem name.
type Registry struct {
	stem  string
	tools map[string]Tool
	log   *zap.SugaredLogger
}

// Dependencies bundles everything built-in and hook-declared tool
// execution needs.
type Dependencies struct {
	Workspace string
	HookStem  string
	HookPath  string
	Caller    *hookcall.Caller
	Validator *sandbox.Validator
	Snapshot  *workspace.Snapshotter
	Notify    NotifyBroadcaster
	Log       *zap.SugaredLogger
}

// Build assembles a Registry from the hook's declared tools plus the
// fixed built-ins. Declared tool names collide-safe with prefix
// `<stem>_<name>`, matching the built-ins' own naming.
func Build(deps Dependencies, declared []ToolDefinition) *Registry {
	r := &Registry{stem: deps.HookStem, tools: map[string]Tool{}, log: deps.Log}

	for _, def := range declared {
		d := def
		r.register(&funcTool{
			name:        r.prefixed(d.Name),
			description: d.Description,
			parameters:  d.Parameters,
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return executeDeclared(ctx, deps, d.Name, args, sessionID)
			},
		})
	}

	for _, b := range builtins(deps) {
		b.name = r.prefixed(b.name)
		r.register(b)
	}

	return r
}

func (r *Registry) prefixed(name string) string {
	return r.stem + "_" + name
}

func (r *Registry) register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a registered tool by its (already prefixed) name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool name, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered tool.
func (r *Registry) All() map[string]Tool {
	out := make(map[string]Tool, len(r.tools))
	for k, v := range r.tools {
		out[k] = v
	}
	return out
}

// executeDeclared dispatches a hook-declared tool call through
// `execute_tool`, applies its notify side effect, and unconditionally
// commits the workspace afterward.
func executeDeclared(ctx context.Context, deps Dependencies, name string, args map[string]any, sessionID string) (string, error) {
	out := deps.Caller.Call(ctx, "execute_tool", map[string]any{
		"tool": name,
		"args": args,
		"session": map[string]any{"id": sessionID},
	}, sessionID)

	applyNotify(deps, sessionID, out)

	if deps.Snapshot != nil {
		deps.Snapshot.Commit(ctx, "update "+name)
	}

	if result, ok := out["result"].(string); ok && result != "" {
		return result, nil
	}
	return "done", nil
}

func applyNotify(deps Dependencies, sourceSessionID string, out map[string]any) {
	raw, ok := out["notify"].([]any)
	if !ok || deps.Notify == nil {
		return
	}
	for _, n := range raw {
		if obj, ok := n.(map[string]any); ok {
			deps.Notify.BroadcastNotification(sourceSessionID, obj)
		}
	}
}

func builtins(deps Dependencies) []*funcTool {
	return []*funcTool{
		{
			name:        "prompt_list",
			description: "enumerate prompt files under prompts/",
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return promptList(deps)
			},
		},
		{
			name:        "prompt_read",
			description: "return the contents of a prompt file",
			parameters:  map[string]string{"name": "prompt file name, relative to prompts/"},
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return promptRead(deps, args)
			},
		},
		{
			name:        "prompt_write",
			description: "replace a prompt file's contents",
			parameters:  map[string]string{"name": "prompt file name", "content": "new file contents"},
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return promptWrite(ctx, deps, args, sessionID)
			},
		},
		{
			name:        "prompt_patch",
			description: "apply a single-occurrence find/replace to a prompt file",
			parameters:  map[string]string{"name": "prompt file name", "old": "text to find", "new": "replacement text"},
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return promptPatch(ctx, deps, args, sessionID)
			},
		},
		{
			name:        "hook_validate",
			description: "run sandbox validation against supplied hook content",
			parameters:  map[string]string{"content": "candidate hook script content"},
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return hookValidate(ctx, deps, args)
			},
		},
		{
			name:        "hook_read",
			description: "return the current hook script content",
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return hookRead(deps)
			},
		},
		{
			name:        "hook_write",
			description: "validate and install new hook script content",
			parameters:  map[string]string{"content": "new hook script content"},
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return hookWrite(ctx, deps, args)
			},
		},
		{
			name:        "hook_patch",
			description: "apply a single-occurrence find/replace to the hook script, then validate and install",
			parameters:  map[string]string{"old": "text to find", "new": "replacement text"},
			fn: func(ctx context.Context, args map[string]any, sessionID string) (string, error) {
				return hookPatch(ctx, deps, args)
			},
		},
	}
}

func promptsDir(deps Dependencies) string { return filepath.Join(deps.Workspace, "prompts") }

func promptList(deps Dependencies) (string, error) {
	entries, err := os.ReadDir(promptsDir(deps))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func promptRead(deps Dependencies, args map[string]any) (string, error) {
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return "missing required argument: name", nil
	}
	raw, err := os.ReadFile(filepath.Join(promptsDir(deps), name))
	if err != nil {
		return fmt.Sprintf("file not found: %s", name), nil
	}
	return string(raw), nil
}

func promptWrite(ctx context.Context, deps Dependencies, args map[string]any, sessionID string) (string, error) {
	name, _ := args["name"].(string)
	content, contentOK := args["content"].(string)
	if name == "" || !contentOK {
		return "missing required argument: name or content", nil
	}
	path := filepath.Join(promptsDir(deps), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	if deps.Notify != nil {
		deps.Notify.BroadcastNotification(sessionID, session.Notification{"type": "trait_changed", "name": name})
	}
	if deps.Snapshot != nil {
		deps.Snapshot.Commit(ctx, "update prompt "+name)
	}
	return "done", nil
}

func promptPatch(ctx context.Context, deps Dependencies, args map[string]any, sessionID string) (string, error) {
	name, _ := args["name"].(string)
	oldStr, _ := args["old"].(string)
	newStr, _ := args["new"].(string)
	if name == "" {
		return "missing required argument: name", nil
	}

	path := filepath.Join(promptsDir(deps), name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("file not found: %s", name), nil
	}

	patched, err := patch.Apply(string(raw), oldStr, newStr)
	if err != nil {
		return err.Error(), nil
	}
	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return "", err
	}

	if deps.Snapshot != nil {
		deps.Snapshot.Commit(ctx, "update prompt "+name)
	}
	return "done", nil
}

func hookValidate(ctx context.Context, deps Dependencies, args map[string]any) (string, error) {
	content, ok := args["content"].(string)
	if !ok {
		return "missing required argument: content", nil
	}
	res, err := deps.Validator.Validate(ctx, []byte(content))
	if err != nil {
		return "", err
	}
	if !res.OK {
		return "validation failed: " + res.Output, nil
	}
	return res.Output, nil
}

func hookRead(deps Dependencies) (string, error) {
	raw, err := os.ReadFile(deps.HookPath)
	if err != nil {
		return "", fmt.Errorf("read hook: %w", err)
	}
	return string(raw), nil
}

func hookWrite(ctx context.Context, deps Dependencies, args map[string]any) (string, error) {
	content, ok := args["content"].(string)
	if !ok {
		return "missing required argument: content", nil
	}
	return validateAndInstall(ctx, deps, content)
}

func hookPatch(ctx context.Context, deps Dependencies, args map[string]any) (string, error) {
	oldStr, _ := args["old"].(string)
	newStr, _ := args["new"].(string)

	current, err := os.ReadFile(deps.HookPath)
	if err != nil {
		return "", fmt.Errorf("read hook: %w", err)
	}

	patched, err := patch.Apply(string(current), oldStr, newStr)
	if err != nil {
		return err.Error(), nil
	}
	return validateAndInstall(ctx, deps, patched)
}

func validateAndInstall(ctx context.Context, deps Dependencies, content string) (string, error) {
	res, err := deps.Validator.Validate(ctx, []byte(content))
	if err != nil {
		return "", err
	}
	if !res.OK {
		return "validation failed: " + res.Output, nil
	}

	if err := os.WriteFile(deps.HookPath, []byte(content), 0o755); err != nil {
		return "", err
	}
	if deps.Snapshot != nil {
		deps.Snapshot.Commit(ctx, "update hook "+deps.HookStem)
	}
	return "done", nil
}
