package agentloop

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxOutputTokens != 8000 {
		t.Errorf("expected max output tokens 8000, got %d", cfg.MaxOutputTokens)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.RetryAttempts)
	}
	if cfg.RetryInterval() != 3*time.Second {
		t.Errorf("expected 3s retry interval, got %v", cfg.RetryInterval())
	}
	if cfg.MaxRounds != 200 {
		t.Errorf("expected 200 max rounds, got %d", cfg.MaxRounds)
	}
	if cfg.DisableLoopDetection {
		t.Error("expected loop detection on by default")
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigOverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentloop.yaml")
	content := `
model: claude-opus-4-6
provider: anthropic
max_rounds: 50
retry_interval_seconds: 5
user_instructions: be terse
tool_output_char_limits:
  shell: 1234
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != "claude-opus-4-6" || cfg.Provider != "anthropic" {
		t.Errorf("unexpected routing config: %+v", cfg)
	}
	if cfg.MaxRounds != 50 {
		t.Errorf("expected max rounds 50, got %d", cfg.MaxRounds)
	}
	if cfg.RetryInterval() != 5*time.Second {
		t.Errorf("expected 5s interval, got %v", cfg.RetryInterval())
	}
	if cfg.UserInstructions != "be terse" {
		t.Errorf("unexpected user instructions: %q", cfg.UserInstructions)
	}
	if cfg.ToolOutputCharLimits["shell"] != 1234 {
		t.Errorf("unexpected tool output limits: %+v", cfg.ToolOutputCharLimits)
	}
	// Unset fields fall back to defaults.
	if cfg.MaxOutputTokens != 8000 {
		t.Errorf("expected default max output tokens, got %d", cfg.MaxOutputTokens)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("expected default retry attempts, got %d", cfg.RetryAttempts)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/no/such/path.yaml"); err == nil {
		t.Error("expected read error")
	}
}

func TestFindConfigExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("model: gpt-5.2\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if found := FindConfig(path); found != path {
		t.Errorf("expected %q, got %q", path, found)
	}
	if found := FindConfig(filepath.Join(dir, "absent.yaml")); found == filepath.Join(dir, "absent.yaml") {
		t.Error("expected a missing explicit path to be skipped")
	}
}
