package manager

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopr-dev/loopr/internal/ratelimit"
	"github.com/loopr-dev/loopr/internal/scheduler"
	"github.com/loopr-dev/loopr/internal/signalbus"
	"github.com/loopr-dev/loopr/internal/store"
	"github.com/loopr-dev/loopr/internal/worktree"
)

func initBaseRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "loopr@example.com")
	run("config", "user.name", "loopr")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	run("add", "-A")
	run("commit", "-m", "seed")
	return dir
}

// planArtifact lays out two specs so spawn.Decide materializes two children.
const planArtifact = `## Summary
x

### Spec 1: first
do the first thing

### Spec 2: second
do the second thing
`

// completingRunner marks a record Complete, writing an artifact to its
// worktree first, and signals the test over done once it has.
type completingRunner struct {
	store     *store.Store
	worktrees *worktree.Manager
	artifact  string
	done      chan string
}

func (r *completingRunner) Run(ctx context.Context, id string) error {
	wt, err := r.worktrees.Create(ctx, id)
	if err != nil {
		return err
	}
	if r.artifact != "" {
		if err := os.WriteFile(filepath.Join(wt.Path, "PLAN.md"), []byte(r.artifact), 0o644); err != nil {
			return err
		}
	}
	_, err = r.store.Mutate(id, func(rec *store.Record) error {
		rec.Status = store.StatusComplete
		if r.artifact != "" {
			rec.OutputArtifacts = []string{"PLAN.md"}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.done <- id
	return nil
}

func newTestManager(t *testing.T, artifact string) (*Manager, *store.Store, chan string) {
	t.Helper()

	base := initBaseRepo(t)
	wm := worktree.NewManager(base, t.TempDir(), true)

	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sched := scheduler.New(s, ratelimit.New(ratelimit.DefaultConfig()), scheduler.DefaultConfig(), scheduler.Limits{MaxConcurrent: 10})

	done := make(chan string, 4)
	runner := &completingRunner{store: s, worktrees: wm, artifact: artifact, done: done}

	m := New(Config{
		Store:       s,
		Scheduler:   sched,
		Worktrees:   wm,
		Signals:     signalbus.New(),
		Coordinator: ratelimit.New(ratelimit.DefaultConfig()),
		Executor:    runner,
	})
	return m, s, done
}

func TestTickAdmitsPendingRecord(t *testing.T) {
	m, s, done := newTestManager(t, "")

	rec := store.NewPlan("build a widget", 3)
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.tick(context.Background())

	select {
	case id := <-done:
		if id != rec.ID {
			t.Fatalf("expected completion for %s, got %s", rec.ID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runner to complete")
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusComplete {
		t.Fatalf("expected Complete, got %s", got.Status)
	}
}

func TestReapDoesNotAutoSpawnFromCompletedPlan(t *testing.T) {
	m, s, done := newTestManager(t, planArtifact)

	rec := store.NewPlan("build a widget", 3)
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.tick(context.Background())
	<-done

	// Give the admitted goroutine's outcome a moment to land on m.done
	// before the next tick's reap drains it.
	time.Sleep(50 * time.Millisecond)
	m.tick(context.Background())

	// A completed Plan must not spawn on its own; only ApprovePlan does.
	if children := s.Children(rec.ID); len(children) != 0 {
		t.Fatalf("expected no spawned children before approval, got %d: %+v", len(children), children)
	}

	if err := m.ApprovePlan(rec.ID); err != nil {
		t.Fatalf("ApprovePlan: %v", err)
	}

	children := s.Children(rec.ID)
	if len(children) != 2 {
		t.Fatalf("expected 2 spawned specs after approval, got %d: %+v", len(children), children)
	}
	for _, c := range children {
		if c.Kind != store.KindSpec {
			t.Fatalf("expected spawned children to be Specs, got %s", c.Kind)
		}
		if c.Status != store.StatusPending {
			t.Fatalf("expected spawned child Pending, got %s", c.Status)
		}
	}
}

func TestApprovePlanIsIdempotent(t *testing.T) {
	m, s, done := newTestManager(t, planArtifact)

	rec := store.NewPlan("build a widget", 3)
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.tick(context.Background())
	<-done
	time.Sleep(50 * time.Millisecond)
	m.tick(context.Background())

	// Approving twice (as could happen with a retried IPC request) must
	// not re-spawn.
	if err := m.ApprovePlan(rec.ID); err != nil {
		t.Fatalf("ApprovePlan: %v", err)
	}
	if err := m.ApprovePlan(rec.ID); err != nil {
		t.Fatalf("ApprovePlan (second): %v", err)
	}

	if len(s.Children(rec.ID)) != 2 {
		t.Fatalf("expected exactly 2 children after repeated approval, got %d", len(s.Children(rec.ID)))
	}
}

func TestRequestControlPausesPendingRecordDirectly(t *testing.T) {
	m, s, _ := newTestManager(t, "")

	rec := store.NewPlan("build a widget", 3)
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.RequestControl(rec.ID, signalbus.Pause); err != nil {
		t.Fatalf("RequestControl: %v", err)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusPaused {
		t.Fatalf("expected Paused, got %s", got.Status)
	}
}

func TestOverQuotaSkipsAdmission(t *testing.T) {
	m, s, _ := newTestManager(t, "")
	m.cfg.DiskQuotaBytes = 1 // anything already logged exceeds this

	rec := store.NewPlan("build a widget", 3)
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.tick(context.Background())

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusPending {
		t.Fatalf("expected record to remain Pending under quota pressure, got %s", got.Status)
	}
}
