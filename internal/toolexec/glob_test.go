package toolexec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGlobMatchesRecursive(t *testing.T) {
	wt := testWorktree(t)
	os.Mkdir(filepath.Join(wt.Path, "sub"), 0o755)
	os.WriteFile(filepath.Join(wt.Path, "sub/a.go"), []byte("package a"), 0o644)
	os.WriteFile(filepath.Join(wt.Path, "b.go"), []byte("package b"), 0o644)
	os.WriteFile(filepath.Join(wt.Path, "c.txt"), []byte("text"), 0o644)

	tc := NewContext("r1", wt)
	tool := &GlobTool{}
	res, err := tool.Execute(context.Background(), tc, map[string]any{"pattern": "**/*.go"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Output, "b.go") || !strings.Contains(res.Output, filepath.Join("sub", "a.go")) {
		t.Fatalf("expected both go files matched, got %q", res.Output)
	}
	if strings.Contains(res.Output, "c.txt") {
		t.Fatalf("did not expect c.txt matched, got %q", res.Output)
	}
}

func TestGlobRequiresPattern(t *testing.T) {
	wt := testWorktree(t)
	tc := NewContext("r1", wt)
	tool := &GlobTool{}
	if _, err := tool.Execute(context.Background(), tc, map[string]any{}); err == nil {
		t.Fatal("expected missing pattern to fail")
	}
}
