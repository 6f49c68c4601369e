package toolexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileTool creates or fully overwrites a file. Unlike edit_file it
// never requires a prior read, since it does not depend on the file's
// existing content.
type WriteFileTool struct{}

func (t *WriteFileTool) Spec() Spec {
	return Spec{
		Name:        "write_file",
		Description: "Create or overwrite a file within the record's worktree.",
		Params: map[string]ParamSpec{
			"path":    {Type: "string", Description: "Path to the file, relative to the worktree root", Required: true},
			"content": {Type: "string", Description: "Full content to write", Required: true},
		},
	}
}

func (t *WriteFileTool) Execute(_ context.Context, tc *Context, args map[string]any) (Result, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return Result{}, fmt.Errorf("write_file: path is required")
	}
	if err := tc.ValidatePath(path); err != nil {
		return Result{}, fmt.Errorf("write_file: %w", err)
	}

	full := tc.normalize(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Result{}, fmt.Errorf("write_file: create dirs: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return Result{}, fmt.Errorf("write_file: %w", err)
	}
	tc.MarkRead(path)

	return Result{Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path), Mutating: true}, nil
}
