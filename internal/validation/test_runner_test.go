package validation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/loopr-dev/loopr/internal/store"
)

func TestTestRunnerConfigDefaults(t *testing.T) {
	cfg := DefaultTestRunnerConfig()
	if cfg.SuccessExitCode != 0 {
		t.Errorf("expected success exit code 0, got %d", cfg.SuccessExitCode)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("expected 5m timeout, got %s", cfg.Timeout)
	}
	if !cfg.ParseFailures {
		t.Error("expected ParseFailures true by default")
	}
}

func TestTestRunnerSuccess(t *testing.T) {
	dir := t.TempDir()
	r := NewTestRunner(TestRunnerConfig{Command: "true", SuccessExitCode: 0, Timeout: 5 * time.Second, ParseFailures: true})
	result, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Pass {
		t.Fatalf("expected pass, got %+v", result)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestTestRunnerFailure(t *testing.T) {
	dir := t.TempDir()
	r := NewTestRunner(TestRunnerConfig{Command: "false", SuccessExitCode: 0, Timeout: 5 * time.Second, ParseFailures: true})
	result, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Pass {
		t.Fatal("expected failure")
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", result.ExitCode)
	}
}

func TestTestRunnerCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	r := NewTestRunner(TestRunnerConfig{
		Command:         "echo hello && echo broke >&2 && exit 1",
		SuccessExitCode: 0,
		Timeout:         5 * time.Second,
		ParseFailures:   true,
	})
	result, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Pass {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("expected stdout to contain hello, got %q", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "broke") {
		t.Errorf("expected stderr to contain broke, got %q", result.Stderr)
	}
}

func TestTestRunnerTimeout(t *testing.T) {
	dir := t.TempDir()
	r := NewTestRunner(TestRunnerConfig{Command: "sleep 10", SuccessExitCode: 0, Timeout: 100 * time.Millisecond, ParseFailures: true})
	result, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Pass || !result.TimedOut {
		t.Fatalf("expected a timeout result, got %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].Category != store.CategoryTimeout {
		t.Fatalf("expected a single Timeout failure, got %+v", result.Failures)
	}
}

func TestParseCompilerErrors(t *testing.T) {
	output := "internal/foo.go:10:5: undefined: bar\n"
	failures := parseCompilerAndLintLines(output)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	f := failures[0]
	if f.Category != store.CategoryCompiler || f.File != "internal/foo.go" || f.Line != 10 || f.Col != 5 {
		t.Fatalf("unexpected parse: %+v", f)
	}
}

func TestParseLintWarnings(t *testing.T) {
	output := "internal/foo.go:5:9: unused variable x (unused)\n"
	failures := parseCompilerAndLintLines(output)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures[0].Category != store.CategoryLint {
		t.Errorf("expected Lint category, got %s", failures[0].Category)
	}
}

func TestParseCompilerAndLintLinesNoCrossContamination(t *testing.T) {
	output := "internal/foo.go:10:5: undefined: bar\ninternal/bar.go:5:9: unused variable x (unused)\n"
	failures := parseCompilerAndLintLines(output)
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d: %+v", len(failures), failures)
	}
	if failures[0].Category != store.CategoryCompiler || failures[1].Category != store.CategoryLint {
		t.Fatalf("expected one compiler then one lint failure, got %+v", failures)
	}
}

func TestParseTestFailures(t *testing.T) {
	output := "--- FAIL: TestFoo (0.00s)\n    foo_test.go:12: assertion failed\n"
	failures := parseTestFailures(output)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures[0].Category != store.CategoryTest {
		t.Errorf("expected Test category, got %s", failures[0].Category)
	}
}

func TestTruncateOutput(t *testing.T) {
	output := "line1\nline2\nline3\nline4\nline5"
	got := truncateOutput(output, 3)
	if !strings.Contains(got, "line1") || !strings.Contains(got, "truncated") {
		t.Errorf("unexpected truncation result: %q", got)
	}
	if strings.Contains(got, "line4") {
		t.Errorf("did not expect line4: %q", got)
	}
}
