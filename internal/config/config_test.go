package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hook != DefaultHook {
		t.Fatalf("hook = %q, want %q", cfg.Hook, DefaultHook)
	}
	if cfg.HeartbeatMs != DefaultHeartbeatMs {
		t.Fatalf("heartbeat_ms = %d, want %d", cfg.HeartbeatMs, DefaultHeartbeatMs)
	}
	if cfg.TestScript != "" {
		t.Fatalf("test_script = %q, want empty", cfg.TestScript)
	}
}

func TestLoad_OverridesWithComments(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "config"), 0o755)

	doc := `{
		// custom hook
		"hook": "persona.py",
		"heartbeat_ms": 5000,
		"test_script": "scripts/test.sh" // trailing comment
	}`
	if err := os.WriteFile(filepath.Join(dir, ConfigRelPath), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hook != "persona.py" {
		t.Fatalf("hook = %q, want persona.py", cfg.Hook)
	}
	if cfg.HeartbeatMs != 5000 {
		t.Fatalf("heartbeat_ms = %d, want 5000", cfg.HeartbeatMs)
	}
	if cfg.TestScript != "scripts/test.sh" {
		t.Fatalf("test_script = %q, want scripts/test.sh", cfg.TestScript)
	}
	if cfg.HookStem() != "persona" {
		t.Fatalf("HookStem() = %q, want persona", cfg.HookStem())
	}
}

func TestLoad_CommentInsideStringPreserved(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "config"), 0o755)

	doc := `{"hook": "has // not a comment.py"}`
	if err := os.WriteFile(filepath.Join(dir, ConfigRelPath), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hook != "has // not a comment.py" {
		t.Fatalf("hook = %q, want literal preserved", cfg.Hook)
	}
}

func TestResolveWorkspace_Env(t *testing.T) {
	t.Setenv("OPENCODE_EVOLVE_WORKSPACE", "/tmp/ws1")
	t.Setenv("OPENCODE_SIDECAR_WORKSPACE", "/tmp/ws2")
	if got := ResolveWorkspace(); got != "/tmp/ws1" {
		t.Fatalf("ResolveWorkspace() = %q, want /tmp/ws1", got)
	}
}

func TestResolveWorkspace_LegacyAlias(t *testing.T) {
	t.Setenv("OPENCODE_EVOLVE_WORKSPACE", "")
	t.Setenv("OPENCODE_SIDECAR_WORKSPACE", "/tmp/ws2")
	if got := ResolveWorkspace(); got != "/tmp/ws2" {
		t.Fatalf("ResolveWorkspace() = %q, want /tmp/ws2", got)
	}
}
