// Package recovery runs once at process start, before the Loop Manager
// begins ticking, to reconcile the Store against whatever the worktree
// root actually contains after an unclean shutdown. Grounded on
// internal/tasks/recovery.go's RecoverTasks (list Running -> reset to
// Pending, appending a checkpoint), extended per spec.md §4.10 with
// worktree-missing/corrupted detection, conditional auto-commit, and an
// orphan sweep modeled on original_source/src/recovery/orphan.rs.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loopr-dev/loopr/internal/store"
	"github.com/loopr-dev/loopr/internal/worktree"
)

// recoveryCommitMessage is used for any auto-commit performed while
// reconciling a dirty worktree left behind by a crashed process.
const recoveryCommitMessage = "recovery: auto-commit before reset"

// Report aggregates what a Recover pass found and did, for the caller to
// log at startup.
type Report struct {
	Recovered   int
	Missing     int
	Corrupted   int
	AutoCommits int
	StoreErrors int
}

// Recover lists every Running record, reconciles its worktree, and resets
// it to Pending preserving its iteration count so resumed work continues
// from the last iteration boundary, per spec.md §4.10.
func Recover(ctx context.Context, st *store.Store, wm *worktree.Manager) (Report, error) {
	var report Report

	running := st.List(store.Filter{Status: store.StatusRunning, StatusSet: true})
	for _, rec := range running {
		recoverOne(ctx, st, wm, rec, &report)
	}

	return report, nil
}

func recoverOne(ctx context.Context, st *store.Store, wm *worktree.Manager, rec *store.Record, report *Report) {
	wt, err := wm.Open(rec.ID)
	switch {
	case errors.Is(err, worktree.ErrMissing):
		report.Missing++
		failRecord(st, rec.ID, "worktree missing after crash", report)
		return
	case errors.Is(err, worktree.ErrCorrupted):
		report.Corrupted++
		failRecord(st, rec.ID, fmt.Sprintf("worktree corrupted: %v", err), report)
		return
	case err != nil:
		report.Corrupted++
		failRecord(st, rec.ID, fmt.Sprintf("worktree open failed: %v", err), report)
		return
	}

	if dirty, err := wm.IsDirty(ctx, wt); err == nil && dirty {
		if err := wm.AutoCommit(ctx, wt, recoveryCommitMessage); err != nil {
			slog.Warn("recovery: auto-commit failed, leaving worktree dirty", "record", rec.ID, "error", err)
		} else {
			report.AutoCommits++
		}
	}

	if _, err := st.Mutate(rec.ID, func(r *store.Record) error {
		r.Status = store.StatusPending
		return nil
	}); err != nil {
		slog.Error("recovery: reset to pending failed", "record", rec.ID, "error", err)
		report.StoreErrors++
		return
	}
	report.Recovered++
}

// failRecord marks id Failed with message, used for worktree states a
// record can't resume from.
func failRecord(st *store.Store, id, message string, report *Report) {
	if _, err := st.Mutate(id, func(r *store.Record) error {
		r.Status = store.StatusFailed
		r.FeedbackHistory = append(r.FeedbackHistory, store.FeedbackEntry{
			Layer: store.LayerComposite,
			Pass:  false,
			Failures: []store.FailureDetail{
				{Category: store.CategoryCommand, Message: message},
			},
		})
		return nil
	}); err != nil {
		slog.Error("recovery: mark failed", "record", id, "error", err)
		report.StoreErrors++
	}
}

// SweepOrphans removes worktree directories that correspond to a
// terminal-status (or altogether unknown) record, per spec.md §4.10's
// orphan sweeper. Safe to call at start and periodically thereafter.
func SweepOrphans(ctx context.Context, st *store.Store, wm *worktree.Manager) (int, error) {
	liveIDs := make(map[string]bool)
	for _, rec := range st.List(store.Filter{}) {
		if !rec.Status.Terminal() {
			liveIDs[rec.ID] = true
		}
	}
	return wm.SweepOrphans(ctx, liveIDs)
}
