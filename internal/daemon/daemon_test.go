package daemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopr-dev/loopr/internal/events"
	"github.com/loopr-dev/loopr/internal/manager"
	"github.com/loopr-dev/loopr/internal/metrics"
	"github.com/loopr-dev/loopr/internal/ratelimit"
	"github.com/loopr-dev/loopr/internal/scheduler"
	"github.com/loopr-dev/loopr/internal/signalbus"
	"github.com/loopr-dev/loopr/internal/store"
	"github.com/loopr-dev/loopr/internal/worktree"
)

const planArtifact = `## Summary
x

### Spec 1: first
do the first thing
`

// completingRunner marks every admitted record Complete immediately,
// writing an artifact to its worktree first so the Spawn Decider has
// something to parse. Mirrors internal/manager's own test fixture.
type completingRunner struct {
	store     *store.Store
	worktrees *worktree.Manager
	artifact  string
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
	return err
}

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

func newTestHandler(t *testing.T, artifact string) (*Handler, *store.Store, *manager.Manager) {
	t.Helper()

	base := initBaseRepo(t)
	wm := worktree.NewManager(base, t.TempDir(), true)

	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sched := scheduler.New(s, ratelimit.New(ratelimit.DefaultConfig()), scheduler.DefaultConfig(), scheduler.Limits{MaxConcurrent: 10})
	runner := &completingRunner{store: s, worktrees: wm, artifact: artifact}

	m := manager.New(manager.Config{
		Store:        s,
		Scheduler:    sched,
		Worktrees:    wm,
		Signals:      signalbus.New(),
		Coordinator:  ratelimit.New(ratelimit.DefaultConfig()),
		Executor:     runner,
		Metrics:      metrics.New(),
		TickInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(cancel)

	bus := events.NewBus(32)
	t.Cleanup(bus.Close)

	return &Handler{Store: s, Manager: m, Bus: bus}, s, m
}

// waitTerminal blocks (polling) until id reaches a terminal status.
func waitTerminal(t *testing.T, s *store.Store, id string) *store.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Status.Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for record to complete")
	return nil
}
