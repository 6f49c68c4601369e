package toolexec

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const maxGlobMatches = 1000

// GlobTool matches files within the worktree against a doublestar glob
// pattern (supports "**" for recursive matching).
type GlobTool struct{}

func (t *GlobTool) Spec() Spec {
	return Spec{
		Name:        "glob",
		Description: "Find files matching a glob pattern (supports ** for recursive matching) within the worktree.",
		Params: map[string]ParamSpec{
			"pattern": {Type: "string", Description: "Glob pattern, e.g. \"**/*.go\"", Required: true},
			"path":    {Type: "string", Description: "Directory to search from, relative to the worktree root (default: root)"},
		},
	}
}

func (t *GlobTool) Execute(_ context.Context, tc *Context, args map[string]any) (Result, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return Result{}, fmt.Errorf("glob: pattern is required")
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	if err := tc.ValidatePath(path); err != nil {
		return Result{}, fmt.Errorf("glob: %w", err)
	}

	root := tc.normalize(path)
	fsys := os.DirFS(root)

	var matches []string
	err := doublestar.GlobWalk(fsys, pattern, func(p string, d fs.DirEntry) error {
		if d.IsDir() && skipDirs[d.Name()] {
			return fs.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		matches = append(matches, p)
		if len(matches) >= maxGlobMatches {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("glob: %w", err)
	}
	sort.Strings(matches)

	return Result{Output: strings.Join(matches, "\n")}, nil
}
