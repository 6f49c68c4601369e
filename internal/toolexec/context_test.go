package toolexec

import (
	"path/filepath"
	"testing"

	"github.com/loopr-dev/loopr/internal/worktree"
)

func testWorktree(t *testing.T) *worktree.Worktree {
	t.Helper()
	dir := t.TempDir()
	return &worktree.Worktree{ID: "lr_test", Path: dir, Branch: "loop-lr_test"}
}

func TestContextMarkReadWasRead(t *testing.T) {
	wt := testWorktree(t)
	tc := NewContext("lr_test", wt)

	if tc.WasRead("a.go") {
		t.Fatal("expected a.go to be unread initially")
	}
	tc.MarkRead("a.go")
	if !tc.WasRead("a.go") {
		t.Fatal("expected a.go to be read after MarkRead")
	}
}

func TestContextNormalizeRelativeAndAbsoluteAgree(t *testing.T) {
	wt := testWorktree(t)
	tc := NewContext("lr_test", wt)

	tc.MarkRead("sub/a.go")
	abs := filepath.Join(wt.Path, "sub/a.go")
	if !tc.WasRead(abs) {
		t.Fatal("expected absolute path to match relative read")
	}
}

func TestContextMutated(t *testing.T) {
	wt := testWorktree(t)
	tc := NewContext("lr_test", wt)

	if tc.Mutated() {
		t.Fatal("expected fresh context to be unmutated")
	}
	tc.MarkMutated()
	if !tc.Mutated() {
		t.Fatal("expected context to be mutated")
	}
}

func TestContextValidatePathRejectsEscape(t *testing.T) {
	wt := testWorktree(t)
	tc := NewContext("lr_test", wt)

	if err := tc.ValidatePath("../../etc/passwd"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
}
