package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"llm": {
		"default_model": "claude-opus-4-5",
		"providers": {
			"anthropic": {
				"api_key_env": "ANTHROPIC_API_KEY"
			}
		}
	},
	"validation": {
		"command": "cargo test"
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.LLM.DefaultModel != "claude-opus-4-5" {
		t.Errorf("expected default_model claude-opus-4-5, got %s", cfg.LLM.DefaultModel)
	}
	if cfg.Validation.Command != "cargo test" {
		t.Errorf("expected command cargo test, got %s", cfg.Validation.Command)
	}

	p, ok := cfg.LLM.Providers["anthropic"]
	if !ok {
		t.Fatal("expected anthropic provider")
	}
	if p.APIKeyEnv != "ANTHROPIC_API_KEY" {
		t.Errorf("expected api_key_env ANTHROPIC_API_KEY, got %s", p.APIKeyEnv)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Validation.MaxIterations != 100 {
		t.Errorf("expected default max_iterations 100, got %d", cfg.Validation.MaxIterations)
	}
	if cfg.Concurrency.MaxRunning != 50 {
		t.Errorf("expected default max_running 50, got %d", cfg.Concurrency.MaxRunning)
	}
	if cfg.LLM.TimeoutMS != 300_000 {
		t.Errorf("expected default timeout_ms 300000, got %d", cfg.LLM.TimeoutMS)
	}
	if cfg.Progress.MaxEntries != 5 {
		t.Errorf("expected default max_entries 5, got %d", cfg.Progress.MaxEntries)
	}
	if len(cfg.Loops.Paths) == 0 {
		t.Error("expected default loop search paths to be non-empty")
	}
}

func TestLoadMissingFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	oldHome := os.Getenv("HOME")
	t.Setenv("HOME", dir)
	t.Setenv("LOOPR_PATH", "")
	defer t.Setenv("HOME", oldHome)

	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldwd)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Validation.MaxIterations != 100 {
		t.Errorf("expected fallback to defaults, got max_iterations=%d", cfg.Validation.MaxIterations)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
