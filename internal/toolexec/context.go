package toolexec

import (
	"path/filepath"
	"sync"

	"github.com/loopr-dev/loopr/internal/worktree"
)

// Context is the per-iteration state an Executor hands to every tool call
// within one iteration. It owns the read-tracking set that makes edit
// semantics enforceable: a file must be read by a tool call earlier in
// this same iteration before it can be edited.
type Context struct {
	Record   string
	Worktree *worktree.Worktree

	mu       sync.Mutex
	readSet  map[string]bool
	mutated  bool
}

// NewContext returns a fresh per-iteration Context. A new Context must be
// created for every iteration; read-tracking never carries across
// iteration boundaries.
func NewContext(record string, wt *worktree.Worktree) *Context {
	return &Context{Record: record, Worktree: wt, readSet: make(map[string]bool)}
}

// normalize resolves path relative to the worktree root for use as a
// read-set key, so "./a.go" and "a.go" track as the same file.
func (c *Context) normalize(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(c.Worktree.Path, path))
}

// MarkRead records that path was read during this iteration.
func (c *Context) MarkRead(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readSet[c.normalize(path)] = true
}

// WasRead reports whether path has been read during this iteration.
func (c *Context) WasRead(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readSet[c.normalize(path)]
}

// MarkMutated records that some tool call in this iteration changed the
// worktree's contents, so the executor knows an auto-commit is due.
func (c *Context) MarkMutated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutated = true
}

// Mutated reports whether any tool call this iteration changed the
// worktree.
func (c *Context) Mutated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutated
}

// ValidatePath checks path resolves within the Context's worktree,
// delegating to the worktree package's symlink-aware jail.
func (c *Context) ValidatePath(path string) error {
	return worktree.ValidatePathInWorktree(c.Worktree, path)
}
