// Package config resolves the plugin's WorkspaceConfig: compiled-in
// defaults merged with an optional JSON document under the workspace.
// It is a leaf package — nothing here depends on any other plugin
// component.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults mirror its configuration option table.
const (
	DefaultHook            = "evolve.py"
	DefaultHeartbeatMs     = 1_800_000
	DefaultHookTimeoutMs   = 30_000
	DefaultHeartbeatTitle  = "heartbeat"
	DefaultHeartbeatAgent  = "evolve"
	DefaultOutputGlyph     = "⚙"
	ConfigRelPath          = "config/evolve.json"
	RuntimeStateRelPath    = "config/runtime.json"
)

// WorkspaceConfig is the resolved, immutable configuration for one
// plugin load. It is built once by Load and never mutated afterward.
type WorkspaceConfig struct {
	Workspace      string
	Hook           string
	HeartbeatMs    int
	HookTimeoutMs  int
	HeartbeatTitle string
	HeartbeatAgent string
	OutputGlyph    string
	TestScript     string // relative path, empty means "no sandbox test configured"
}

// HeartbeatPeriod returns the heartbeat interval as a time.Duration.
func (c WorkspaceConfig) HeartbeatPeriod() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// HookTimeout returns the per-subprocess timeout as a time.Duration.
func (c WorkspaceConfig) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutMs) * time.Millisecond
}

// HookPath returns the absolute path to the hook executable.
func (c WorkspaceConfig) HookPath() string {
	return filepath.Join(c.Workspace, "hooks", c.Hook)
}

// HookStem returns the hook's basename without its file extension,
// used as the tool-registration prefix.
func (c WorkspaceConfig) HookStem() string {
	base := filepath.Base(c.Hook)
	return base[:len(base)-len(filepath.Ext(base))]
}

// RuntimeStatePath returns the absolute path to the persisted model cache.
func (c WorkspaceConfig) RuntimeStatePath() string {
	return filepath.Join(c.Workspace, RuntimeStateRelPath)
}

// fileDoc is the optional on-disk shape of config/evolve.json. Every
// field is optional; absent fields fall back to compiled-in defaults.
type fileDoc struct {
	Hook           *string `json:"hook"`
	HeartbeatMs    *int    `json:"heartbeat_ms"`
	HookTimeoutMs  *int    `json:"hook_timeout"`
	HeartbeatTitle *string `json:"heartbeat_title"`
	HeartbeatAgent *string `json:"heartbeat_agent"`
	OutputGlyph    *string `json:"output_glyph"`
	TestScript     *string `json:"test_script"`
}

// Load reads config/evolve.json (if present) under workspace and
// merges it over the compiled-in defaults.
func Load(workspace string) (WorkspaceConfig, error) {
	cfg := WorkspaceConfig{
		Workspace:      workspace,
		Hook:           DefaultHook,
		HeartbeatMs:    DefaultHeartbeatMs,
		HookTimeoutMs:  DefaultHookTimeoutMs,
		HeartbeatTitle: DefaultHeartbeatTitle,
		HeartbeatAgent: DefaultHeartbeatAgent,
		OutputGlyph:    DefaultOutputGlyph,
	}

	path := filepath.Join(workspace, ConfigRelPath)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var doc fileDoc
	if err := json.Unmarshal(stripLineComments(raw), &doc); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if doc.Hook != nil {
		cfg.Hook = *doc.Hook
	}
	if doc.HeartbeatMs != nil {
		cfg.HeartbeatMs = *doc.HeartbeatMs
	}
	if doc.HookTimeoutMs != nil {
		cfg.HookTimeoutMs = *doc.HookTimeoutMs
	}
	if doc.HeartbeatTitle != nil {
		cfg.HeartbeatTitle = *doc.HeartbeatTitle
	}
	if doc.HeartbeatAgent != nil {
		cfg.HeartbeatAgent = *doc.HeartbeatAgent
	}
	if doc.OutputGlyph != nil {
		cfg.OutputGlyph = *doc.OutputGlyph
	}
	if doc.TestScript != nil {
		cfg.TestScript = *doc.TestScript
	}

	return cfg, nil
}

// ResolveWorkspace resolves the workspace root from
// OPENCODE_EVOLVE_WORKSPACE, then the legacy alias, then
// <home>/workspace.
func ResolveWorkspace() string {
	if v := os.Getenv("OPENCODE_EVOLVE_WORKSPACE"); v != "" {
		return v
	}
	if v := os.Getenv("OPENCODE_SIDECAR_WORKSPACE"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "workspace")
}

// stripLineComments removes "//" comments that run to end-of-line,
// skipping occurrences inside string literals. This is deliberately
// minimal: this module places full JSONC parsing out of scope as an
// external collaborator.
func stripLineComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	inString := false
	escaped := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if c == '/' && i+1 < len(src) && src[i+1] == '/' {
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				out = append(out, '\n')
			}
			continue
		}
		out = append(out, c)
	}
	return out
}
