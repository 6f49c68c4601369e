package toolexec

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxListEntries = 1000

// skipDirs are directory names list_dir and grep never descend into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".hg":          true,
}

// ListDirTool lists directory contents, optionally recursively.
type ListDirTool struct{}

func (t *ListDirTool) Spec() Spec {
	return Spec{
		Name:        "list_dir",
		Description: "List directory contents within the record's worktree.",
		Params: map[string]ParamSpec{
			"path":      {Type: "string", Description: "Directory to list, relative to the worktree root", Required: true},
			"recursive": {Type: "boolean", Description: "List recursively"},
		},
	}
}

type listEntry struct {
	path  string
	isDir bool
	size  int64
}

func (t *ListDirTool) Execute(_ context.Context, tc *Context, args map[string]any) (Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	recursive, _ := args["recursive"].(bool)
	if err := tc.ValidatePath(path); err != nil {
		return Result{}, fmt.Errorf("list_dir: %w", err)
	}

	root := tc.normalize(path)
	var entries []listEntry

	if recursive {
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if p == root {
				return nil
			}
			var size int64
			if info, err := d.Info(); err == nil {
				size = info.Size()
			}
			entries = append(entries, listEntry{path: rel(root, p), isDir: d.IsDir(), size: size})
			if len(entries) >= maxListEntries {
				return filepath.SkipAll
			}
			return nil
		})
	} else {
		dirEntries, err := os.ReadDir(root)
		if err != nil {
			return Result{}, fmt.Errorf("list_dir: %w", err)
		}
		for _, de := range dirEntries {
			var size int64
			if info, err := de.Info(); err == nil {
				size = info.Size()
			}
			entries = append(entries, listEntry{path: de.Name(), isDir: de.IsDir(), size: size})
		}
	}

	var b strings.Builder
	for _, e := range entries {
		if e.isDir {
			fmt.Fprintf(&b, "%s/\n", e.path)
		} else {
			fmt.Fprintf(&b, "%s (%d bytes)\n", e.path, e.size)
		}
	}
	return Result{Output: b.String()}, nil
}

func rel(root, path string) string {
	r, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return r
}
