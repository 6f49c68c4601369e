package toolexec

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultMaxGrepResults = 50

// GrepTool searches file contents within the worktree using a regex
// pattern, skipping .git/node_modules/vendor/.hg and binary files.
type GrepTool struct{}

func (t *GrepTool) Spec() Spec {
	return Spec{
		Name:        "grep",
		Description: "Search file contents using a regex pattern within the worktree.",
		Params: map[string]ParamSpec{
			"pattern":     {Type: "string", Description: "Regex pattern to search for", Required: true},
			"path":        {Type: "string", Description: "Directory to search in, relative to the worktree root (default: root)"},
			"glob":        {Type: "string", Description: "Glob pattern to filter file names, e.g. \"*.go\""},
			"max_results": {Type: "integer", Description: "Maximum number of matches to return (default 50)"},
		},
	}
}

func (t *GrepTool) Execute(_ context.Context, tc *Context, args map[string]any) (Result, error) {
	patternStr, _ := args["pattern"].(string)
	if patternStr == "" {
		return Result{}, fmt.Errorf("grep: pattern is required")
	}
	re, err := regexp.Compile(patternStr)
	if err != nil {
		return Result{}, fmt.Errorf("grep: invalid regex: %w", err)
	}

	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	glob, _ := args["glob"].(string)
	maxResults := intArg(args, "max_results")
	if maxResults <= 0 {
		maxResults = defaultMaxGrepResults
	}
	if err := tc.ValidatePath(path); err != nil {
		return Result{}, fmt.Errorf("grep: %w", err)
	}

	root := tc.normalize(path)
	var b strings.Builder
	total := 0
	truncated := false

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if glob != "" {
			if matched, _ := filepath.Match(glob, d.Name()); !matched {
				return nil
			}
		}
		if isBinary(p) {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			if re.MatchString(text) {
				total++
				if total <= maxResults {
					fmt.Fprintf(&b, "%s:%d: %s\n", rel(root, p), line, text)
				} else {
					truncated = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("grep: %w", err)
	}
	if truncated {
		fmt.Fprintf(&b, "... (truncated, %d matches total)\n", total)
	}

	return Result{Output: b.String()}, nil
}

func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
	}
	return false
}
