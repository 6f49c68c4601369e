package validation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loopr-dev/loopr/internal/store"
)

type stubCompleter struct {
	response string
	err      error
}

func (s *stubCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.response, s.err
}

func TestJudgeCriteriaBuildPrompt(t *testing.T) {
	c := PlanCriteria()
	prompt := c.BuildPrompt("# Plan\n...")
	if !strings.Contains(prompt, "plan") {
		t.Errorf("expected subject in prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "PASS") || !strings.Contains(prompt, "FAIL:") {
		t.Error("expected the binary verdict instructions in the prompt")
	}
}

func TestStandardCriteriaNonEmpty(t *testing.T) {
	for _, c := range []JudgeCriteria{PlanCriteria(), SpecCriteria(), PhaseCriteria(), DocumentationCriteria()} {
		if len(c.Questions) == 0 {
			t.Errorf("expected questions for subject %q", c.Subject)
		}
	}
}

func TestParseJudgeResponsePass(t *testing.T) {
	result, err := parseJudgeResponse("PASS", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Pass {
		t.Fatal("expected pass")
	}
}

func TestParseJudgeResponseFail(t *testing.T) {
	result, err := parseJudgeResponse("FAIL: missing acceptance criteria", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pass {
		t.Fatal("expected fail")
	}
	if len(result.Failures) != 1 || result.Failures[0].Category != store.CategoryJudge {
		t.Fatalf("expected one judge-category failure, got %+v", result.Failures)
	}
	if !strings.Contains(result.Reasoning, "missing acceptance criteria") {
		t.Errorf("expected reasoning to carry the reason, got %q", result.Reasoning)
	}
}

func TestParseJudgeResponseInferred(t *testing.T) {
	passResult, err := parseJudgeResponse("This meets all the criteria, approve.", time.Second)
	if err != nil || !passResult.Pass {
		t.Fatalf("expected inferred pass, got %+v err=%v", passResult, err)
	}

	failResult, err := parseJudgeResponse("This does not meet the bar, reject it.", time.Second)
	if err != nil || failResult.Pass {
		t.Fatalf("expected inferred fail, got %+v err=%v", failResult, err)
	}
}

func TestParseJudgeResponseAmbiguous(t *testing.T) {
	_, err := parseJudgeResponse("The weather is nice today.", time.Second)
	if !errors.Is(err, ErrAmbiguousVerdict) {
		t.Fatalf("expected ErrAmbiguousVerdict, got %v", err)
	}
}

func TestJudgeRoundTripPass(t *testing.T) {
	j := NewJudge(&stubCompleter{response: "PASS"})
	result, err := j.Judge(context.Background(), PlanCriteria(), "# Plan\n...")
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if !result.Pass {
		t.Fatal("expected pass")
	}
}

func TestJudgeRoundTripFail(t *testing.T) {
	j := NewJudge(&stubCompleter{response: "FAIL: no risks section"})
	result, err := j.Judge(context.Background(), PlanCriteria(), "# Plan\n...")
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if result.Pass {
		t.Fatal("expected fail")
	}
}

func TestJudgeRoundTripAmbiguous(t *testing.T) {
	j := NewJudge(&stubCompleter{response: "maybe?"})
	_, err := j.Judge(context.Background(), PlanCriteria(), "# Plan\n...")
	if !errors.Is(err, ErrAmbiguousVerdict) {
		t.Fatalf("expected ErrAmbiguousVerdict, got %v", err)
	}
}
