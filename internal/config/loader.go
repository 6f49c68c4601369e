package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load resolves the Global document per spec.md §6's search order:
// explicit path (if non-empty), then a project-local file in cwd, then
// the user-home config. A missing file at any of the first two steps
// falls through to the next; if none exist, Load returns built-in
// defaults rather than an error.
func Load(explicitPath string) (*Global, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return loadFile(explicitPath)
		}
	}

	if _, err := os.Stat(ProjectConfigPath()); err == nil {
		return loadFile(ProjectConfigPath())
	}

	if _, err := os.Stat(ConfigPath()); err == nil {
		return loadFile(ConfigPath())
	}

	cfg := Global{}
	applyDefaults(&cfg)
	return &cfg, nil
}

// loadFile reads a single JSONC document, strips comments, expands
// ${{ .Env.VAR }} templates, and unmarshals it into a Global.
func loadFile(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvTemplates(string(data))

	var cfg Global
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills zero-value fields of cfg with the values
// original_source/src/config/global.rs's Default impls use.
func applyDefaults(cfg *Global) {
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = "claude-sonnet-4-5"
	}
	if cfg.LLM.TimeoutMS == 0 {
		cfg.LLM.TimeoutMS = 300_000
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderConfig{
			"anthropic": {
				Driver:    "anthropic",
				Model:     cfg.LLM.DefaultModel,
				APIKeyEnv: "ANTHROPIC_API_KEY",
				BaseURL:   "https://api.anthropic.com",
			},
		}
	}

	if cfg.Concurrency.MaxRunning == 0 {
		cfg.Concurrency.MaxRunning = 50
	}
	if cfg.Concurrency.MaxAPICalls == 0 {
		cfg.Concurrency.MaxAPICalls = 10
	}
	if cfg.Concurrency.MaxWorktrees == 0 {
		cfg.Concurrency.MaxWorktrees = 50
	}

	if cfg.Validation.Command == "" {
		cfg.Validation.Command = "go test ./..."
	}
	if cfg.Validation.IterationTimeoutMS == 0 {
		cfg.Validation.IterationTimeoutMS = 300_000
	}
	if cfg.Validation.MaxIterations == 0 {
		cfg.Validation.MaxIterations = 100
	}

	if cfg.Progress.MaxEntries == 0 {
		cfg.Progress.MaxEntries = 5
	}
	if cfg.Progress.MaxOutputChars == 0 {
		cfg.Progress.MaxOutputChars = 500
	}

	if cfg.Git.WorktreeDir == "" {
		cfg.Git.WorktreeDir = filepath.Join(os.TempDir(), "loopr", "worktrees")
	}
	if cfg.Git.DiskQuotaGB == 0 {
		cfg.Git.DiskQuotaGB = 100
	}

	if cfg.Storage.StoreDir == "" {
		cfg.Storage.StoreDir = filepath.Join(LooprPath(), "store")
	}
	if cfg.Storage.LogWarnMB == 0 {
		cfg.Storage.LogWarnMB = 100
	}
	if cfg.Storage.LogErrorMB == 0 {
		cfg.Storage.LogErrorMB = 500
	}

	if len(cfg.Loops.Paths) == 0 {
		cfg.Loops.Paths = []string{
			"builtin",
			filepath.Join(LooprPath(), "loops"),
			".loopr/loops",
		}
	}
}
