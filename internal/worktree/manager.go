package worktree

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Manager creates, commits, and reaps the isolated worktrees rooted at a
// single base repository, one worktree per record id.
type Manager struct {
	baseRepo string
	root     string
	autoCommit bool
}

// NewManager returns a Manager that carves worktrees for baseRepo under
// root (typically "<loopr data dir>/worktrees").
func NewManager(baseRepo, root string, autoCommit bool) *Manager {
	return &Manager{baseRepo: baseRepo, root: root, autoCommit: autoCommit}
}

// Create adds a new worktree for id on a fresh branch loop-<id>, branched
// from the base repo's current HEAD.
func (m *Manager) Create(ctx context.Context, id string) (*Worktree, error) {
	path, err := ResolvePath(m.root, id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("worktree: ensure root %s: %w", m.root, err)
	}

	branch := BranchName(id)
	if _, err := runGit(ctx, m.baseRepo, "worktree", "add", "-b", branch, path, "HEAD"); err != nil {
		return nil, err
	}

	return &Worktree{ID: id, Path: path, Branch: branch}, nil
}

// Open returns the Worktree handle for an id whose directory already
// exists, verifying it is valid git state.
func (m *Manager) Open(id string) (*Worktree, error) {
	path, err := ResolvePath(m.root, id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("worktree: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorrupted, path)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return nil, fmt.Errorf("%w: %s has no .git", ErrCorrupted, path)
	}
	return &Worktree{ID: id, Path: path, Branch: BranchName(id)}, nil
}

// IsDirty reports whether a worktree has any uncommitted changes.
func (m *Manager) IsDirty(ctx context.Context, wt *Worktree) (bool, error) {
	out, err := runGit(ctx, wt.Path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// AutoCommit stages and commits every pending change in wt, used both at
// the end of a normal iteration and during crash recovery of a dirty
// worktree whose process died mid-iteration.
func (m *Manager) AutoCommit(ctx context.Context, wt *Worktree, message string) error {
	if !m.autoCommit {
		return nil
	}
	dirty, err := m.IsDirty(ctx, wt)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if _, err := runGit(ctx, wt.Path, "add", "-A"); err != nil {
		return err
	}
	if _, err := runGit(ctx, wt.Path, "commit", "-m", message); err != nil {
		return err
	}
	return nil
}

// Remove tears down a worktree and deletes its branch. Missing worktrees
// are tolerated since Remove is also used to clean up after a record that
// failed before its worktree was created.
func (m *Manager) Remove(ctx context.Context, id string) error {
	path, err := ResolvePath(m.root, id)
	if err != nil {
		return err
	}
	if _, err := runGit(ctx, m.baseRepo, "worktree", "remove", "--force", path); err != nil {
		slog.Warn("worktree remove failed, falling back to directory removal", "id", id, "error", err)
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("worktree: remove %s: %w", path, rmErr)
		}
	}
	branch := BranchName(id)
	if _, err := runGit(ctx, m.baseRepo, "branch", "-D", branch); err != nil {
		slog.Warn("worktree branch delete failed", "branch", branch, "error", err)
	}
	return nil
}

// ListOrphans returns directories under root whose name is not in
// liveIDs: worktrees of terminal or unknown records, and leftovers from a
// process that died before it could call Remove.
func (m *Manager) ListOrphans(ctx context.Context, liveIDs map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("worktree: list root %s: %w", m.root, err)
	}

	var orphans []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if liveIDs[e.Name()] {
			continue
		}
		orphans = append(orphans, filepath.Join(m.root, e.Name()))
	}
	return orphans, nil
}

// registeredWorktrees returns the set of worktree paths git itself knows
// about for the base repo, parsed from `git worktree list --porcelain`.
func (m *Manager) registeredWorktrees(ctx context.Context) (map[string]bool, error) {
	out, err := runGit(ctx, m.baseRepo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	reg := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if p, ok := strings.CutPrefix(line, "worktree "); ok {
			reg[filepath.Clean(p)] = true
		}
	}
	return reg, nil
}

// SweepOrphans removes every orphaned worktree directory found under root,
// returning how many were removed. Grounded on the periodic orphan sweep
// described for the Recovery Manager.
func (m *Manager) SweepOrphans(ctx context.Context, liveIDs map[string]bool) (int, error) {
	orphans, err := m.ListOrphans(ctx, liveIDs)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, path := range orphans {
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("failed to remove orphan worktree", "path", path, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
