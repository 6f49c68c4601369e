package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopr-dev/loopr/internal/store"
)

// ErrAmbiguousVerdict is returned when a judge response is neither an
// explicit PASS/FAIL nor confidently inferable from keywords. The caller
// (the Iteration Executor) retries the judge call, bounded, rather than
// silently defaulting either way.
var ErrAmbiguousVerdict = errors.New("validation: ambiguous judge response")

// Completer is the narrow request/response boundary the judge needs from
// a language model. internal/llm.Client satisfies it; judge.go deliberately
// does not depend on internal/llm or any chat-message/tool-calling type to
// keep the validation package's surface small.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// JudgeExamples are optional few-shot anchors appended to a judge prompt.
type JudgeExamples struct {
	Pass string
	Fail string
}

// JudgeCriteria is a kind-specific checklist the judge evaluates an
// artifact against.
type JudgeCriteria struct {
	Subject   string
	Questions []string
	Examples  *JudgeExamples
}

// BuildPrompt renders criteria and the artifact under test into the binary
// PASS/FAIL prompt the judge model sees.
func (c JudgeCriteria) BuildPrompt(artifact string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluate the following %s against this checklist:\n\n", c.Subject)
	for i, q := range c.Questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	sb.WriteString("\n---\n")
	sb.WriteString(artifact)
	sb.WriteString("\n---\n\n")
	sb.WriteString("Respond with exactly one of:\n")
	sb.WriteString("PASS\n")
	sb.WriteString("FAIL: <reason>\n\n")
	sb.WriteString("No other text.")
	if c.Examples != nil {
		sb.WriteString("\n\nExamples:\n")
		if c.Examples.Pass != "" {
			fmt.Fprintf(&sb, "- %s\n", c.Examples.Pass)
		}
		if c.Examples.Fail != "" {
			fmt.Fprintf(&sb, "- %s\n", c.Examples.Fail)
		}
	}
	return sb.String()
}

// PlanCriteria is the standard checklist for Plan artifacts.
func PlanCriteria() JudgeCriteria {
	return JudgeCriteria{
		Subject: "plan",
		Questions: []string{
			"Does the plan clearly state what problem it solves?",
			"Are the specs it defines independently schedulable?",
			"Are the non-goals explicit enough to prevent scope creep?",
			"Are the risks section's concerns actionable, not vague?",
		},
	}
}

// SpecCriteria is the standard checklist for Spec artifacts.
func SpecCriteria() JudgeCriteria {
	return JudgeCriteria{
		Subject: "spec",
		Questions: []string{
			"Does the spec fully cover its parent plan's relevant goals?",
			"Are the acceptance criteria testable, not subjective?",
			"Are the phases it defines ordered sensibly?",
			"Is any requirement left ambiguous or contradictory?",
		},
	}
}

// PhaseCriteria is the standard checklist for Phase artifacts.
func PhaseCriteria() JudgeCriteria {
	return JudgeCriteria{
		Subject: "phase",
		Questions: []string{
			"Does the phase describe a concretely achievable unit of work?",
			"Are its tasks specific enough for an agent to execute directly?",
			"Do the acceptance criteria match what the tasks actually produce?",
			"Is the phase scoped small enough to fit one iteration budget?",
		},
	}
}

// DocumentationCriteria is the standard checklist for generated Code-kind
// documentation artifacts (READMEs, design notes).
func DocumentationCriteria() JudgeCriteria {
	return JudgeCriteria{
		Subject: "documentation",
		Questions: []string{
			"Does it accurately describe the code as written, not as intended?",
			"Would a new contributor be able to act on it without guessing?",
			"Is it free of placeholder or TODO content?",
			"Does it match the surrounding documentation's register and depth?",
		},
	}
}

// JudgeResult is the outcome of one judge call.
type JudgeResult struct {
	Pass      bool
	Reasoning string
	Failures  []store.FailureDetail
	Duration  time.Duration
}

func passResult(reasoning string, d time.Duration) JudgeResult {
	return JudgeResult{Pass: true, Reasoning: reasoning, Duration: d}
}

func failResult(reason string, d time.Duration) JudgeResult {
	return JudgeResult{
		Pass:      false,
		Reasoning: reason,
		Duration:  d,
		Failures:  []store.FailureDetail{{Category: store.CategoryJudge, Message: reason}},
	}
}

// Judge is Layer 3: a dedicated agent call asking for a binary verdict.
type Judge struct {
	client       Completer
	SystemPrompt string
	Timeout      time.Duration
}

const defaultJudgeTimeout = 60 * time.Second

// NewJudge builds a Judge around client with the teacher's reviewer-voice
// system prompt.
func NewJudge(client Completer) *Judge {
	return &Judge{
		client:       client,
		SystemPrompt: "You are a strict, terse reviewer. Answer only PASS or FAIL: <reason>.",
		Timeout:      defaultJudgeTimeout,
	}
}

// Judge asks the model for a verdict on artifact against criteria.
// ErrAmbiguousVerdict is returned (wrapped) when the response can't be
// parsed as PASS, FAIL, or inferred from keywords — the executor retries
// the call rather than guessing.
func (j *Judge) Judge(ctx context.Context, criteria JudgeCriteria, artifact string) (JudgeResult, error) {
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	resp, err := j.client.Complete(cctx, j.SystemPrompt, criteria.BuildPrompt(artifact))
	duration := time.Since(start)

	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return failResult(fmt.Sprintf("judge call timed out after %s", j.Timeout), duration), nil
		}
		return JudgeResult{}, fmt.Errorf("validation: judge call: %w", err)
	}

	return parseJudgeResponse(resp, duration)
}

func parseJudgeResponse(content string, d time.Duration) (JudgeResult, error) {
	trimmed := strings.TrimSpace(content)

	upper := strings.ToUpper(trimmed)
	if upper == "PASS" {
		return passResult(trimmed, d), nil
	}
	if strings.HasPrefix(upper, "FAIL:") || strings.HasPrefix(upper, "FAIL ") {
		reason := strings.TrimSpace(trimmed[4:])
		reason = strings.TrimPrefix(reason, ":")
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "judge rejected the artifact"
		}
		return failResult(reason, d), nil
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "fail") || strings.Contains(lower, "reject") || strings.Contains(lower, "does not meet"):
		return failResult(trimmed, d), nil
	case strings.Contains(lower, "pass") || strings.Contains(lower, "approve") || strings.Contains(lower, "meets all"):
		return passResult(trimmed, d), nil
	}

	return JudgeResult{}, fmt.Errorf("%w: %q", ErrAmbiguousVerdict, truncateOutput(trimmed, 5))
}
