package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

const (
	defaultRunCmdTimeout = 30 * time.Second
	maxRunCmdTimeout     = 300 * time.Second
)

// RunCommandTool executes a shell command rooted at the record's
// worktree, subject to the sandbox denylist and a bounded timeout.
type RunCommandTool struct{}

func (t *RunCommandTool) Spec() Spec {
	return Spec{
		Name:        "run_command",
		Description: "Execute a shell command inside the record's worktree, with a configurable timeout.",
		Params: map[string]ParamSpec{
			"command": {Type: "string", Description: "The shell command to execute", Required: true},
			"timeout": {Type: "integer", Description: "Timeout in seconds (default 30, max 300)"},
		},
	}
}

func (t *RunCommandTool) Execute(ctx context.Context, tc *Context, args map[string]any) (Result, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return Result{}, fmt.Errorf("run_command: command is required")
	}
	if err := checkCommand(command); err != nil {
		return Result{}, err
	}

	timeout := defaultRunCmdTimeout
	if secs := intArg(args, "timeout"); secs > 0 {
		timeout = time.Duration(secs) * time.Second
		if timeout > maxRunCmdTimeout {
			timeout = maxRunCmdTimeout
		}
	}

	slog.Info("run_command: executing", "record", tc.Record, "command", command, "timeout", timeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = tc.Worktree.Path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return Result{}, fmt.Errorf("run_command: %w", runCtx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, fmt.Errorf("run_command: exec: %w", err)
		}
	}

	out := fmt.Sprintf("exit code: %d\nstdout:\n%s\nstderr:\n%s", exitCode, stdout.String(), stderr.String())
	return Result{Output: out, Mutating: true}, nil
}
