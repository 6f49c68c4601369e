// Package config resolves Loopr's three-layer configuration, per spec.md
// §6 and §9: a process-wide Global document, per-unit-kind Definition
// documents (built-in set plus user-overridable YAML), and per-execution
// Overrides. Resolve combines the three into an Effective configuration
// as a pure, deterministic function, matching the original
// config/resolution.rs layering this module generalizes from Rust loop
// types to the teacher's Go config idiom (JSONC root document, struct
// tags, explicit defaulting).
package config

import "time"

// Global is the process-wide configuration document (Layer 1), loaded
// from the search order in Load: explicit path, then project-local
// file, then user-home config.
type Global struct {
	LLM         LLMConfig         `json:"llm"`
	Concurrency ConcurrencyConfig `json:"concurrency"`
	Validation  ValidationConfig  `json:"validation"`
	Progress    ProgressConfig    `json:"progress"`
	Git         GitConfig         `json:"git"`
	Storage     StorageConfig     `json:"storage"`
	Loops       LoopsConfig       `json:"loops"`
}

// LLMConfig holds the default model and per-provider settings.
type LLMConfig struct {
	DefaultModel string                    `json:"default_model"`
	TimeoutMS    int                       `json:"timeout_ms"`
	Providers    map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	Driver    string                 `json:"driver"`
	Model     string                 `json:"model,omitempty"`
	MaxTokens int                    `json:"max_tokens,omitempty"`
	Timeout   DurationMS             `json:"timeout_ms,omitempty"`
	Auth      AuthConfig             `json:"auth,omitempty"`
	APIKeyEnv string                 `json:"api_key_env"`
	BaseURL   string                 `json:"base_url,omitempty"`
	Models    map[string]ModelConfig `json:"models,omitempty"`
}

// AuthConfig carries an explicit credential for a provider, taking
// precedence over APIKeyEnv's environment-variable lookup when set.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"`
	Token  string `json:"token,omitempty"`
}

// DurationMS is a millisecond duration as it appears in JSONC config
// documents, convertible to a time.Duration via Duration.
type DurationMS int

// Duration returns d as a time.Duration.
func (d DurationMS) Duration() time.Duration { return time.Duration(d) * time.Millisecond }

// ModelConfig holds per-model overrides for a provider.
type ModelConfig struct {
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ConcurrencyConfig caps how much of the system runs at once.
type ConcurrencyConfig struct {
	MaxRunning      int            `json:"max_running"`
	MaxAPICalls     int            `json:"max_api_calls"`
	MaxWorktrees    int            `json:"max_worktrees"`
	PerKindMaxCaps  map[string]int `json:"per_kind_max_caps,omitempty"`
}

// ValidationConfig holds the default test command and iteration limits.
type ValidationConfig struct {
	Command            string `json:"command"`
	IterationTimeoutMS int    `json:"iteration_timeout_ms"`
	MaxIterations      int    `json:"max_iterations"`
}

// ProgressConfig bounds how much feedback history is retained.
type ProgressConfig struct {
	MaxEntries    int `json:"max_entries"`
	MaxOutputChars int `json:"max_output_chars"`
}

// GitConfig configures worktree placement and disk quota.
type GitConfig struct {
	WorktreeDir string `json:"worktree_dir"`
	DiskQuotaGB int64  `json:"disk_quota_gb"`
}

// StorageConfig configures the on-disk store directory and log-size
// thresholds.
type StorageConfig struct {
	StoreDir    string `json:"store_dir"`
	LogWarnMB   int64  `json:"log_warn_mb"`
	LogErrorMB  int64  `json:"log_error_mb"`
}

// LoopsConfig lists the search paths for per-kind Definition documents.
type LoopsConfig struct {
	Paths []string `json:"paths"`
}

// Definition is a per-unit-kind document (Layer 2): the built-in set
// plus any user-overridable YAML documents found on LoopsConfig.Paths.
// Pointer fields are unset-means-inherit, mirroring the original
// loop_type.rs's Option<T> fields.
type Definition struct {
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description,omitempty"`
	Prompt             string   `yaml:"prompt,omitempty"`
	ValidationCommand  *string  `yaml:"validation_command,omitempty"`
	SuccessExitCode    *int     `yaml:"success_exit_code,omitempty"`
	MaxIterations      *int     `yaml:"max_iterations,omitempty"`
	MaxTurns           *int     `yaml:"max_turns,omitempty"`
	IterationTimeoutMS *int     `yaml:"iteration_timeout_ms,omitempty"`
	MaxTokens          *int     `yaml:"max_tokens,omitempty"`
	Tools              []string `yaml:"tools,omitempty"`
	Extends            string   `yaml:"extends,omitempty"`
}

// Overrides carries per-execution values (Layer 3), any subset of which
// may be set; nil/zero means "don't override". CompletePrompt, when
// set, entirely replaces the resolved prompt template rather than
// appending to it.
type Overrides struct {
	MaxIterations      *int
	MaxTurns           *int
	TestCommand        *string
	IterationTimeout   *time.Duration
	MaxTokens          *int
	ToolAllowList      []string
	CompletePrompt     *string
}

// Effective is the fully-resolved configuration an Iteration Executor
// consumes, produced by Resolve.
type Effective struct {
	Kind               string
	PromptTemplate     string
	ValidationCommand  string
	SuccessExitCode    int
	MaxIterations      int
	MaxTurnsPerIter    int
	IterationTimeout   time.Duration
	MaxTokens          int
	Tools              []string
	ProgressMaxEntries int
	ProgressMaxChars   int
}

// Resolve merges defaults, the named kind's Definition (following its
// Extends chain), and overrides into an Effective configuration. It is
// total and deterministic: an unknown kind name simply falls back to
// global.Validation/Progress defaults with no type-specific prompt,
// matching resolution.rs's "unknown type uses defaults" behavior.
func Resolve(global Global, kinds map[string]Definition, kind string, overrides Overrides) Effective {
	eff := Effective{
		Kind:               kind,
		ValidationCommand:  global.Validation.Command,
		SuccessExitCode:    0,
		MaxIterations:      global.Validation.MaxIterations,
		IterationTimeout:   time.Duration(global.Validation.IterationTimeoutMS) * time.Millisecond,
		ProgressMaxEntries: global.Progress.MaxEntries,
		ProgressMaxChars:   global.Progress.MaxOutputChars,
	}

	if def, ok := kinds[kind]; ok {
		applyDefinition(&eff, def, kinds, make(map[string]bool))
	}

	applyOverrides(&eff, overrides)
	return eff
}

// applyDefinition applies def's fields over eff, first recursing into
// its Extends parent so the child's own values win. seen guards against
// an extends cycle, which would otherwise recurse forever.
func applyDefinition(eff *Effective, def Definition, kinds map[string]Definition, seen map[string]bool) {
	if def.Extends != "" && !seen[def.Extends] {
		seen[def.Extends] = true
		if parent, ok := kinds[def.Extends]; ok {
			applyDefinition(eff, parent, kinds, seen)
		}
	}

	if def.Prompt != "" {
		eff.PromptTemplate = def.Prompt
	}
	if def.ValidationCommand != nil {
		eff.ValidationCommand = *def.ValidationCommand
	}
	if def.SuccessExitCode != nil {
		eff.SuccessExitCode = *def.SuccessExitCode
	}
	if def.MaxIterations != nil {
		eff.MaxIterations = *def.MaxIterations
	}
	if def.MaxTurns != nil {
		eff.MaxTurnsPerIter = *def.MaxTurns
	}
	if def.IterationTimeoutMS != nil {
		eff.IterationTimeout = time.Duration(*def.IterationTimeoutMS) * time.Millisecond
	}
	if def.MaxTokens != nil {
		eff.MaxTokens = *def.MaxTokens
	}
	if def.Tools != nil {
		eff.Tools = def.Tools
	}
}

func applyOverrides(eff *Effective, o Overrides) {
	if o.MaxIterations != nil {
		eff.MaxIterations = *o.MaxIterations
	}
	if o.MaxTurns != nil {
		eff.MaxTurnsPerIter = *o.MaxTurns
	}
	if o.TestCommand != nil {
		eff.ValidationCommand = *o.TestCommand
	}
	if o.IterationTimeout != nil {
		eff.IterationTimeout = *o.IterationTimeout
	}
	if o.MaxTokens != nil {
		eff.MaxTokens = *o.MaxTokens
	}
	if o.ToolAllowList != nil {
		eff.Tools = o.ToolAllowList
	}
	if o.CompletePrompt != nil {
		eff.PromptTemplate = *o.CompletePrompt
	}
}
