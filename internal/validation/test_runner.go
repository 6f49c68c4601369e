package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/loopr-dev/loopr/internal/store"
)

// TestRunnerConfig configures Layer 2: a shell command run inside the
// unit's worktree.
type TestRunnerConfig struct {
	Command         string
	SuccessExitCode int
	Timeout         time.Duration
	ParseFailures   bool
}

// DefaultTestRunnerConfig mirrors the original's "otto ci" default, adapted
// to the Go toolchain: build, vet, and test in one shot.
func DefaultTestRunnerConfig() TestRunnerConfig {
	return TestRunnerConfig{
		Command:         "go build ./... && go vet ./... && go test ./...",
		SuccessExitCode: 0,
		Timeout:         5 * time.Minute,
		ParseFailures:   true,
	}
}

// TestResult is the outcome of one Layer 2 run.
type TestResult struct {
	Pass     bool
	ExitCode int
	HasExit  bool
	Failures []store.FailureDetail
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// TestRunner executes TestRunnerConfig.Command with a timeout and reports
// structured failures.
type TestRunner struct {
	cfg TestRunnerConfig
}

// NewTestRunner builds a TestRunner from cfg.
func NewTestRunner(cfg TestRunnerConfig) *TestRunner {
	return &TestRunner{cfg: cfg}
}

// Run executes the configured command inside dir.
func (r *TestRunner) Run(ctx context.Context, dir string) (TestResult, error) {
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", r.cfg.Command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		return TestResult{
			Pass:     false,
			TimedOut: true,
			Duration: r.cfg.Timeout,
			Failures: []store.FailureDetail{{
				Category: store.CategoryTimeout,
				Message:  fmt.Sprintf("command timed out after %s", r.cfg.Timeout),
			}},
		}, nil
	}

	var exitCode int
	hasExit := true
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return TestResult{}, fmt.Errorf("test runner: start command: %w", err)
		}
	}

	pass := hasExit && exitCode == r.cfg.SuccessExitCode

	var failures []store.FailureDetail
	if !pass && r.cfg.ParseFailures {
		failures = r.parseFailures(stdout.String(), stderr.String())
	}

	return TestResult{
		Pass:     pass,
		ExitCode: exitCode,
		HasExit:  hasExit,
		Failures: failures,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}, nil
}

func (r *TestRunner) parseFailures(stdout, stderr string) []store.FailureDetail {
	combined := stdout + "\n" + stderr

	var failures []store.FailureDetail
	failures = append(failures, parseCompilerAndLintLines(combined)...)
	failures = append(failures, parseTestFailures(combined)...)

	if len(failures) == 0 && strings.TrimSpace(stderr) != "" {
		failures = append(failures, store.FailureDetail{
			Category: store.CategoryCommand,
			Message:  "command failed",
			Context:  truncateOutput(stderr, 50),
		})
	}

	return failures
}

// lintWarningRe matches golangci-lint's default output: "path/file.go:12:5: message (linter)".
var lintWarningRe = regexp.MustCompile(`^(\S+\.go):(\d+):(\d+):\s*(.+?)\s*\(([a-zA-Z0-9_-]+)\)$`)

// compilerErrorRe matches `go build`/`go vet` output: "path/file.go:12:5: message".
var compilerErrorRe = regexp.MustCompile(`^(\S+\.go):(\d+):(\d+):\s*(.+)$`)

// parseCompilerAndLintLines scans file:line:col: message lines shared by
// `go build`, `go vet`, and `golangci-lint` output. A line ending in
// "(linter-name)" is lint; everything else is treated as a compiler error.
func parseCompilerAndLintLines(output string) []store.FailureDetail {
	var failures []store.FailureDetail
	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)

		if m := lintWarningRe.FindStringSubmatch(line); m != nil {
			lineNum, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			failures = append(failures, store.FailureDetail{
				Category: store.CategoryLint,
				Message:  fmt.Sprintf("%s (%s)", m[4], m[5]),
				File:     m[1],
				Line:     lineNum,
				Col:      col,
			})
			continue
		}

		if m := compilerErrorRe.FindStringSubmatch(line); m != nil {
			lineNum, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			failures = append(failures, store.FailureDetail{
				Category: store.CategoryCompiler,
				Message:  m[4],
				File:     m[1],
				Line:     lineNum,
				Col:      col,
			})
		}
	}
	return failures
}

// testFailRe matches `go test`'s "--- FAIL: TestName (0.00s)" lines.
var testFailRe = regexp.MustCompile(`^--- FAIL: (\S+)`)

func parseTestFailures(output string) []store.FailureDetail {
	var failures []store.FailureDetail
	for _, line := range strings.Split(output, "\n") {
		m := testFailRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		failures = append(failures, store.FailureDetail{
			Category: store.CategoryTest,
			Message:  fmt.Sprintf("test failed: %s", m[1]),
		})
	}
	return failures
}

func truncateOutput(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	return strings.Join(lines[:maxLines], "\n") + "\n... (truncated)"
}
