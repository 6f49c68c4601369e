package toolexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

const defaultGitToolTimeout = 15 * time.Second

// GitTool exposes a restricted set of git operations scoped to the
// record's own worktree. "push" is deliberately absent: every worktree
// is local-only for the lifetime of a loop, and publishing results is
// the recovery/daemon layer's job, not an agent's.
type GitTool struct{}

func (t *GitTool) Spec() Spec {
	return Spec{
		Name:        "git",
		Description: "Run a git operation inside the record's worktree: status, diff, log, add, commit, branch, checkout.",
		Params: map[string]ParamSpec{
			"action": {
				Type:        "string",
				Description: "Git action to perform",
				Required:    true,
				Enum:        []string{"status", "diff", "log", "add", "commit", "branch", "checkout"},
			},
			"paths":   {Type: "array", Description: "Paths for the add action"},
			"message": {Type: "string", Description: "Commit message for the commit action"},
			"ref":     {Type: "string", Description: "Branch or ref for checkout/branch actions"},
			"staged":  {Type: "boolean", Description: "Diff staged changes only"},
			"max":     {Type: "integer", Description: "Max entries for the log action"},
		},
	}
}

func (t *GitTool) Execute(ctx context.Context, tc *Context, args map[string]any) (Result, error) {
	action, _ := args["action"].(string)
	dir := tc.Worktree.Path

	switch action {
	case "status":
		return t.run(ctx, dir, false, "status", "--porcelain")
	case "diff":
		cmdArgs := []string{"diff"}
		if staged, _ := args["staged"].(bool); staged {
			cmdArgs = append(cmdArgs, "--staged")
		}
		return t.run(ctx, dir, false, cmdArgs...)
	case "log":
		max := intArg(args, "max")
		if max <= 0 {
			max = 10
		}
		if max > 100 {
			max = 100
		}
		return t.run(ctx, dir, false, "log", "--oneline", "-"+strconv.Itoa(max))
	case "add":
		paths := stringSliceArg(args["paths"])
		if len(paths) == 0 {
			return Result{}, fmt.Errorf("git: add requires paths")
		}
		return t.run(ctx, dir, true, append([]string{"add"}, paths...)...)
	case "commit":
		message, _ := args["message"].(string)
		if message == "" {
			return Result{}, fmt.Errorf("git: commit requires message")
		}
		return t.run(ctx, dir, true, "commit", "-m", message)
	case "branch":
		ref, _ := args["ref"].(string)
		if ref == "" {
			return t.run(ctx, dir, false, "branch", "-a")
		}
		return t.run(ctx, dir, true, "branch", ref)
	case "checkout":
		ref, _ := args["ref"].(string)
		if ref == "" {
			return Result{}, fmt.Errorf("git: checkout requires ref")
		}
		return t.run(ctx, dir, true, "checkout", ref)
	default:
		return Result{}, fmt.Errorf("git: unsupported action %q", action)
	}
}

func (t *GitTool) run(ctx context.Context, dir string, mutating bool, args ...string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, defaultGitToolTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return Result{}, fmt.Errorf("git: exec: %w", err)
		}
	}

	output := stdout.String()
	if output == "" {
		output = stderr.String()
	}
	return Result{Output: output, Mutating: mutating}, nil
}

func stringSliceArg(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if direct, ok := v.([]string); ok {
			return direct
		}
		// Fall back to JSON round-trip for values decoded from elsewhere.
		if b, err := json.Marshal(v); err == nil {
			var out []string
			if json.Unmarshal(b, &out) == nil {
				return out
			}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
