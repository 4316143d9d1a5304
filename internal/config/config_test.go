package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Panels.MaxPanels != 5 {
		t.Errorf("expected max panels 5, got %d", cfg.Panels.MaxPanels)
	}
	if cfg.ChatSession != (LimitsConfig{MaxToolCalls: 3, MaxIterations: 3}) {
		t.Errorf("unexpected chat limits %+v", cfg.ChatSession)
	}
	if cfg.AgentSession != (LimitsConfig{MaxToolCalls: 50, MaxIterations: 30}) {
		t.Errorf("unexpected agent limits %+v", cfg.AgentSession)
	}
	if cfg.Timeouts.Tool != 45*time.Second {
		t.Errorf("expected tool timeout 45s, got %v", cfg.Timeouts.Tool)
	}
	if cfg.Timeouts.StreamOpen != 30*time.Second || cfg.Timeouts.Turn != 300*time.Second {
		t.Errorf("unexpected stream timeouts %+v", cfg.Timeouts)
	}
	if cfg.Workspace.MaxOutputChars != 12000 {
		t.Errorf("expected max output 12000, got %d", cfg.Workspace.MaxOutputChars)
	}
	if len(cfg.Approval.GatedTools) != 1 || cfg.Approval.GatedTools[0] != "run_command" {
		t.Errorf("expected run_command gated, got %v", cfg.Approval.GatedTools)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestPanelName(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.PanelName(0); got != "Assistant 1" {
		t.Errorf("PanelName(0) = %q, want %q", got, "Assistant 1")
	}
	if got := cfg.PanelName(3); got != "Assistant 4" {
		t.Errorf("PanelName(3) = %q, want %q", got, "Assistant 4")
	}
}

func TestPriceFor(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.PriceFor("gemini-3-flash-preview")
	if p.Input != 0.50 || p.Output != 3.00 {
		t.Errorf("unexpected flash price %+v", p)
	}
	if (cfg.PriceFor("unknown-model") != Price{}) {
		t.Error("unknown model should have zero price")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no panels", func(c *Config) { c.Panels.MaxPanels = 0 }},
		{"zero iterations", func(c *Config) { c.AgentSession.MaxIterations = 0 }},
		{"negative tool calls", func(c *Config) { c.ChatSession.MaxToolCalls = -1 }},
		{"bad mode", func(c *Config) { c.Approval.Mode = "yolo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `skills_dir: custom_skills
panels:
  max_panels: 3
chat_session:
  max_tool_calls: 6
  max_iterations: 4
timeouts:
  tool: 10s
approval:
  mode: strict
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.loadFromFile(configPath); err != nil {
		t.Fatalf("loadFromFile failed: %v", err)
	}

	if cfg.SkillsDir != "custom_skills" {
		t.Errorf("expected skills dir 'custom_skills', got %s", cfg.SkillsDir)
	}
	if cfg.Panels.MaxPanels != 3 {
		t.Errorf("expected max panels 3, got %d", cfg.Panels.MaxPanels)
	}
	if cfg.ChatSession.MaxToolCalls != 6 || cfg.ChatSession.MaxIterations != 4 {
		t.Errorf("unexpected chat limits %+v", cfg.ChatSession)
	}
	if cfg.Timeouts.Tool != 10*time.Second {
		t.Errorf("expected tool timeout 10s, got %v", cfg.Timeouts.Tool)
	}
	// Untouched keys keep their defaults.
	if cfg.AgentSession.MaxToolCalls != 50 {
		t.Errorf("expected agent default to survive, got %d", cfg.AgentSession.MaxToolCalls)
	}
	if cfg.Approval.Mode != "strict" {
		t.Errorf("expected strict mode, got %s", cfg.Approval.Mode)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when no API key is set")
	}
	if _, err := LoadWithOptions(LoadOptions{SkipKeyCheck: true}); err != nil {
		t.Errorf("SkipKeyCheck should load without keys: %v", err)
	}
}

func TestLoadWritesDefaultAndReadsKeys(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AnthropicAPIKey != "anthropic-key" || cfg.GoogleAPIKey != "google-key" {
		t.Errorf("keys not read from environment: %q %q", cfg.AnthropicAPIKey, cfg.GoogleAPIKey)
	}
	if cfg.ConfigPath() != filepath.Join(".skillpanes", "config.yaml") {
		t.Errorf("unexpected config path %q", cfg.ConfigPath())
	}
	if _, err := os.Stat(filepath.Join(dir, ".skillpanes", "config.yaml")); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}
