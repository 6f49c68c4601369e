package toolexec

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadFileTool reads file contents with optional line offset and limit,
// and records the read in the Context's read-tracking set so a later
// edit_file call in the same iteration is allowed.
type ReadFileTool struct{}

func (t *ReadFileTool) Spec() Spec {
	return Spec{
		Name:        "read_file",
		Description: "Read the contents of a file within the record's worktree.",
		Params: map[string]ParamSpec{
			"path":   {Type: "string", Description: "Path to the file, relative to the worktree root", Required: true},
			"offset": {Type: "integer", Description: "Line offset (0-based) to start reading from"},
			"limit":  {Type: "integer", Description: "Maximum number of lines to return"},
		},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, tc *Context, args map[string]any) (Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return Result{}, fmt.Errorf("read_file: path is required")
	}
	if err := tc.ValidatePath(path); err != nil {
		return Result{}, fmt.Errorf("read_file: %w", err)
	}

	full := tc.normalize(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return Result{}, fmt.Errorf("read_file: %w", err)
	}
	tc.MarkRead(path)

	lines := strings.Split(string(data), "\n")
	total := len(lines)

	offset := intArg(args, "offset")
	limit := intArg(args, "limit")
	if offset > 0 {
		if offset >= len(lines) {
			lines = nil
		} else {
			lines = lines[offset:]
		}
	}
	truncated := false
	if limit > 0 && limit < len(lines) {
		lines = lines[:limit]
		truncated = true
	}

	out := strings.Join(lines, "\n")
	if truncated {
		out += "\n... (truncated, " + strconv.Itoa(total) + " lines total)"
	}
	return Result{Output: out}, nil
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
