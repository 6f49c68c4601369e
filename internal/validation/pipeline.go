package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loopr-dev/loopr/internal/store"
)

// ValidationOutcome is the result of one Pipeline.Validate call: either
// every configured gate passed, or the first gate to fail produced a
// feedback entry.
type ValidationOutcome struct {
	Pass  bool
	Entry store.FeedbackEntry
}

// GateConfig selects which of the three layers run and with what settings.
// A nil field skips that gate entirely — used for record kinds that don't
// have a structured artifact (Code) or that skip the judge (no criteria
// configured).
type GateConfig struct {
	Structure       *StructureValidator
	TestRunner      *TestRunner
	Judge           *Judge
	JudgeCriteria   JudgeCriteria
	MaxJudgeRetries int
}

const defaultMaxJudgeRetries = 2

// LoopTypeValidation returns the standard GateConfig for a record kind.
// Code records skip the structure gate: they produce code, not a
// structured markdown artifact, so Layer 1 has nothing to check.
func LoopTypeValidation(kind store.Kind, judge *Judge, testCfg TestRunnerConfig) GateConfig {
	cfg := GateConfig{
		TestRunner:      NewTestRunner(testCfg),
		Judge:           judge,
		MaxJudgeRetries: defaultMaxJudgeRetries,
	}

	switch kind {
	case store.KindPlan:
		cfg.Structure = ForPlan()
		cfg.JudgeCriteria = PlanCriteria()
	case store.KindSpec:
		cfg.Structure = ForSpec()
		cfg.JudgeCriteria = SpecCriteria()
	case store.KindPhase:
		cfg.Structure = ForPhase()
		cfg.JudgeCriteria = PhaseCriteria()
	case store.KindCode:
		// no structure gate; judge (if present) reviews the diff/summary
		// the caller passes as the artifact.
	}

	return cfg
}

// Pipeline runs Structure, Tests, and Judge in order, short-circuiting on
// the first failure. A pass result only happens when every configured gate
// passes.
type Pipeline struct {
	cfg     GateConfig
	Timeout time.Duration
}

// NewPipeline builds a Pipeline from cfg. Timeout bounds the whole
// Validate call, on top of each gate's own internal timeout.
func NewPipeline(cfg GateConfig) *Pipeline {
	return &Pipeline{cfg: cfg, Timeout: 10 * time.Minute}
}

// WithTimeout sets the overall pipeline timeout and returns p for chaining.
func (p *Pipeline) WithTimeout(d time.Duration) *Pipeline {
	p.Timeout = d
	return p
}

// Validate runs the configured gates against artifact (the unit's primary
// textual output, e.g. plan.md content) inside workDir (the unit's
// worktree, for the test gate).
func (p *Pipeline) Validate(ctx context.Context, artifact, workDir string) (ValidationOutcome, error) {
	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if p.cfg.Structure != nil {
		start := time.Now()
		if failures := p.cfg.Structure.Validate(artifact); len(failures) > 0 {
			return ValidationOutcome{Entry: store.FeedbackEntry{
				Layer:    store.LayerStructure,
				Pass:     false,
				Duration: time.Since(start),
				Failures: failures,
			}}, nil
		}
	}

	if p.cfg.TestRunner != nil {
		start := time.Now()
		result, err := p.cfg.TestRunner.Run(cctx, workDir)
		if err != nil {
			return ValidationOutcome{}, fmt.Errorf("validation: test gate: %w", err)
		}
		if !result.Pass {
			return ValidationOutcome{Entry: store.FeedbackEntry{
				Layer:    store.LayerTests,
				Pass:     false,
				Duration: time.Since(start),
				Failures: result.Failures,
			}}, nil
		}
	}

	if p.cfg.Judge != nil {
		start := time.Now()
		result, err := p.runJudgeWithRetry(cctx, artifact)
		if err != nil {
			return ValidationOutcome{}, fmt.Errorf("validation: judge gate: %w", err)
		}
		if !result.Pass {
			return ValidationOutcome{Entry: store.FeedbackEntry{
				Layer:    store.LayerJudge,
				Pass:     false,
				Duration: time.Since(start),
				Failures: result.Failures,
			}}, nil
		}
	}

	return ValidationOutcome{Pass: true, Entry: store.FeedbackEntry{Layer: store.LayerComposite, Pass: true}}, nil
}

// runJudgeWithRetry re-issues the judge call when the response is
// ambiguous, bounded by MaxJudgeRetries, per spec.md §4.5.
func (p *Pipeline) runJudgeWithRetry(ctx context.Context, artifact string) (JudgeResult, error) {
	retries := p.cfg.MaxJudgeRetries
	if retries <= 0 {
		retries = defaultMaxJudgeRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		result, err := p.cfg.Judge.Judge(ctx, p.cfg.JudgeCriteria, artifact)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrAmbiguousVerdict) {
			return JudgeResult{}, err
		}
		lastErr = err
	}

	return JudgeResult{}, fmt.Errorf("validation: judge gate exhausted retries: %w", lastErr)
}
