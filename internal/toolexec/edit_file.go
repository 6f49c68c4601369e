package toolexec

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ErrNotRead is returned when an edit_file call targets a path the
// current iteration has not yet read.
var ErrNotRead = fmt.Errorf("toolexec: file must be read before it can be edited")

// EditFileTool performs an exact string replacement in an existing file.
// It enforces the read-before-edit invariant: a path must have been
// read earlier in the same iteration via read_file or write_file before
// edit_file will touch it, so the agent's edit is always grounded in
// content it has actually seen.
type EditFileTool struct{}

func (t *EditFileTool) Spec() Spec {
	return Spec{
		Name:        "edit_file",
		Description: "Replace an exact substring in a file that was already read this iteration.",
		Params: map[string]ParamSpec{
			"path":        {Type: "string", Description: "Path to the file, relative to the worktree root", Required: true},
			"old_string":  {Type: "string", Description: "Exact text to replace", Required: true},
			"new_string":  {Type: "string", Description: "Replacement text", Required: true},
			"replace_all": {Type: "boolean", Description: "Replace every occurrence instead of requiring exactly one"},
		},
	}
}

func (t *EditFileTool) Execute(_ context.Context, tc *Context, args map[string]any) (Result, error) {
	path, _ := args["path"].(string)
	oldString, _ := args["old_string"].(string)
	newString, _ := args["new_string"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	if path == "" {
		return Result{}, fmt.Errorf("edit_file: path is required")
	}
	if oldString == newString {
		return Result{}, fmt.Errorf("edit_file: old_string and new_string are identical")
	}
	if err := tc.ValidatePath(path); err != nil {
		return Result{}, fmt.Errorf("edit_file: %w", err)
	}
	if !tc.WasRead(path) {
		return Result{}, fmt.Errorf("edit_file: %s: %w", path, ErrNotRead)
	}

	full := tc.normalize(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return Result{}, fmt.Errorf("edit_file: %w", err)
	}
	content := string(data)

	count := strings.Count(content, oldString)
	if count == 0 {
		return Result{}, fmt.Errorf("edit_file: old_string not found in %s", path)
	}
	if !replaceAll && count > 1 {
		return Result{}, fmt.Errorf("edit_file: old_string is not unique in %s (%d occurrences)", path, count)
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldString, newString)
	} else {
		updated = strings.Replace(content, oldString, newString, 1)
	}

	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		return Result{}, fmt.Errorf("edit_file: write: %w", err)
	}
	tc.MarkRead(path)

	return Result{Output: fmt.Sprintf("replaced %d occurrence(s) in %s", count, path), Mutating: true}, nil
}
