// Package manager owns the top-level tick loop: poll the Store for
// runnable records, ask the Scheduler which to admit, spawn an Iteration
// Executor per admission, reap completed executors, and run the Spawn
// Decider over newly-completed parents. Grounded on
// internal/actors/pool.go's scheduleLoop/schedule wake-channel-plus-poll-
// ticker pattern, generalized from a flat single-level task pool to the
// four-level spawn-aware tick spec.md §4.9 describes.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loopr-dev/loopr/internal/metrics"
	"github.com/loopr-dev/loopr/internal/ratelimit"
	"github.com/loopr-dev/loopr/internal/scheduler"
	"github.com/loopr-dev/loopr/internal/signalbus"
	"github.com/loopr-dev/loopr/internal/spawn"
	"github.com/loopr-dev/loopr/internal/store"
	"github.com/loopr-dev/loopr/internal/worktree"
)

// defaultTickInterval is how often the Manager wakes on its own, absent an
// explicit admission-changing event, to notice newly-runnable records
// (e.g. a parent another process completed).
const defaultTickInterval = 2 * time.Second

// Runner drives a single record's iteration loop to a terminal status.
// internal/executor.Executor satisfies this; the interface exists here
// only so the Manager's own tests can substitute a scripted runner
// instead of wiring a full Executor and its agent/tool/worktree stack.
type Runner interface {
	Run(ctx context.Context, recordID string) error
}

// Config holds everything the Manager needs to run its tick loop. As with
// internal/executor.Config, these are constructed values rather than
// internal/config types: config-driven wiring happens in cmd/loopr.
type Config struct {
	Store       *store.Store
	Scheduler   *scheduler.Scheduler
	Worktrees   *worktree.Manager
	Signals     *signalbus.Bus
	Coordinator *ratelimit.Coordinator
	Executor    Runner

	// Metrics is optional; a nil Metrics makes every recording call a
	// no-op, so tests and other callers that don't care about
	// observability can simply leave it unset.
	Metrics *metrics.Metrics

	TickInterval time.Duration

	// DiskQuotaBytes caps the on-disk store log size; the Manager stops
	// admitting new records once LogSize reaches it, though already
	// running units are left to finish. Zero disables the check.
	DiskQuotaBytes int64

	// MaxIterationsFor resolves a spawned child's iteration budget by
	// kind, typically config.Resolve(...).MaxIterations wrapped by
	// cmd/loopr. Nil falls back to spawn.Decide's built-in default.
	MaxIterationsFor func(store.Kind) int
}

// outcome is what a finished executor goroutine reports back to the tick
// loop for reaping.
type outcome struct {
	recordID string
	err      error
}

// Manager runs the tick loop described in spec.md §4.9. One Manager owns
// one Store; callers run exactly one per process.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	inFlight  map[string]context.CancelFunc
	running   map[store.Kind]int
	done      chan outcome
	wakeCh    chan struct{}
	spawnedOf map[string]bool // records whose children have been spawned
}

// New returns a Manager built from cfg, applying defaults for any unset
// tuning fields.
func New(cfg Config) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	return &Manager{
		cfg:       cfg,
		inFlight:  make(map[string]context.CancelFunc),
		running:   make(map[store.Kind]int),
		done:      make(chan outcome, 64),
		wakeCh:    make(chan struct{}, 1),
		spawnedOf: make(map[string]bool),
	}
}

// Submit creates a brand-new root record (typically a Plan) and wakes the
// tick loop so it's considered on the next pass.
func (m *Manager) Submit(rec *store.Record) error {
	if err := m.cfg.Store.Create(rec); err != nil {
		return fmt.Errorf("manager: submit: %w", err)
	}
	m.wake()
	return nil
}

// RequestControl applies an external pause/resume/cancel request to id.
// Delete maps to Invalidate; there is no hard delete, per spec.md §4.9.
// A Running record's signal is delivered through the Signal Bus for its
// executor to observe at the next checkpoint; a not-yet-running record is
// mutated in the Store directly since no executor owns it yet.
func (m *Manager) RequestControl(id string, verb signalbus.Verb) error {
	if m.cfg.Signals.Registered(id) {
		if m.cfg.Signals.Send(id, verb) {
			return nil
		}
	}

	rec, err := m.cfg.Store.Get(id)
	if err != nil {
		return fmt.Errorf("manager: request control: %w", err)
	}
	if rec.Status.Terminal() {
		return nil
	}

	var next store.Status
	switch verb {
	case signalbus.Pause:
		next = store.StatusPaused
	case signalbus.Resume:
		next = store.StatusPending
	case signalbus.Stop:
		next = store.StatusFailed
	case signalbus.Invalidate:
		next = store.StatusInvalidated
	default:
		return fmt.Errorf("manager: request control: unknown verb %q", verb)
	}

	_, err = m.cfg.Store.Mutate(id, func(r *store.Record) error {
		r.Status = next
		return nil
	})
	return err
}

// wake sends a non-blocking signal to the tick loop.
func (m *Manager) wake() {
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

// Wake nudges the tick loop to reconsider runnable records immediately
// instead of waiting for the next TickInterval. Exposed for internal/daemon
// so a start/resume request is picked up without a scheduling delay.
func (m *Manager) Wake() {
	m.wake()
}

// Run drives the tick loop until ctx is cancelled, at which point every
// in-flight executor is cancelled too and Run waits for them to return.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		m.tick(ctx)

		select {
		case <-ctx.Done():
			m.waitForInFlight()
			return ctx.Err()
		case <-m.wakeCh:
		case <-ticker.C:
		}
	}
}

// waitForInFlight cancels every in-flight executor and drains their
// outcomes, used when Run's context is cancelled.
func (m *Manager) waitForInFlight() {
	m.mu.Lock()
	n := len(m.inFlight)
	for _, cancel := range m.inFlight {
		cancel()
	}
	m.mu.Unlock()

	for i := 0; i < n; i++ {
		<-m.done
	}
}

// tick runs one full pass of the loop described in spec.md §4.9: reap,
// spawn children of newly-completed parents, then admit new selections.
func (m *Manager) tick(ctx context.Context) {
	start := time.Now()
	defer func() { m.cfg.Metrics.ObserveTick(time.Since(start)) }()

	m.reap(ctx)
	m.cfg.Metrics.SampleRateLimit(m.cfg.Coordinator)

	if m.overQuota() {
		return
	}

	m.admit(ctx)
}

// reap drains every outcome currently waiting on m.done and, for each,
// updates the in-flight bookkeeping and runs the Spawn Decider if the
// record finished Complete. Drained outcomes are processed concurrently
// via errgroup, since each one may do its own worktree read.
func (m *Manager) reap(ctx context.Context) {
	var outcomes []outcome
drain:
	for {
		select {
		case o := <-m.done:
			outcomes = append(outcomes, o)
		default:
			break drain
		}
	}
	if len(outcomes) == 0 {
		return
	}

	g, _ := errgroup.WithContext(ctx)
	for _, o := range outcomes {
		o := o
		m.mu.Lock()
		delete(m.inFlight, o.recordID)
		m.mu.Unlock()

		if o.err != nil {
			slog.Warn("manager: executor returned error", "record", o.recordID, "error", o.err)
		}

		g.Go(func() error {
			rec, err := m.cfg.Store.Get(o.recordID)
			if err != nil {
				slog.Error("manager: reap: record vanished", "record", o.recordID, "error", err)
				return nil
			}
			m.decrementRunning(rec.Kind)
			m.cfg.Metrics.AddReaped(rec.Kind, rec.Status)
			if rec.Status == store.StatusComplete {
				m.spawnChildren(rec)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// spawnChildren runs the Spawn Decider over rec's primary output
// artifact and materializes any resulting child records. A parent is
// only ever decided once, tracked by spawnedOf, since a Complete status
// is a permanent sink and re-reaping the same outcome can't happen, but
// a defensive guard costs nothing and protects against a future caller
// reapplying an already-handled outcome.
//
// A completed Plan is the one exception: it does not spawn here at all.
// spec.md §6 names an explicit approve-plan IPC method "that triggers
// spec spawn", distinct from ordinary completion — so a Plan's children
// wait for ApprovePlan instead of spawning automatically like every
// other kind.
func (m *Manager) spawnChildren(rec *store.Record) {
	if rec.Kind == store.KindPlan {
		return
	}
	if m.spawnedOf[rec.ID] {
		return
	}
	m.spawnedOf[rec.ID] = true

	artifact := m.readPrimaryArtifact(rec)
	children := spawn.DecideWithLimits(rec, artifact, m.cfg.MaxIterationsFor)
	for _, child := range children {
		if err := m.cfg.Store.Create(child); err != nil {
			slog.Error("manager: create spawned child", "parent", rec.ID, "error", err)
		}
	}
	m.cfg.Metrics.AddSpawned(rec.Kind, len(children))
	if len(children) > 0 {
		m.wake()
	}
}

// readPrimaryArtifact reads the first recorded output artifact of rec
// from its worktree, returning "" if the record has none or the
// worktree can no longer be opened (e.g. already reaped by a sweep).
func (m *Manager) readPrimaryArtifact(rec *store.Record) string {
	if len(rec.OutputArtifacts) == 0 {
		return ""
	}
	wt, err := m.cfg.Worktrees.Open(rec.ID)
	if err != nil {
		slog.Warn("manager: open worktree for spawn artifact", "record", rec.ID, "error", err)
		return ""
	}
	data, err := os.ReadFile(filepath.Join(wt.Path, rec.OutputArtifacts[0]))
	if err != nil {
		slog.Warn("manager: read spawn artifact", "record", rec.ID, "error", err)
		return ""
	}
	return string(data)
}

// overQuota reports whether the store's on-disk log has reached the
// configured quota. A zero DiskQuotaBytes disables the check entirely.
func (m *Manager) overQuota() bool {
	if m.cfg.DiskQuotaBytes <= 0 {
		return false
	}
	return m.cfg.Store.LogSize() >= m.cfg.DiskQuotaBytes
}

// admit asks the Scheduler for the next batch of selections and starts an
// independent executor goroutine per selection — each record's iteration
// loop runs to its own terminal status on its own schedule, reported back
// through m.done for a later tick's reap to pick up.
func (m *Manager) admit(ctx context.Context) {
	m.mu.Lock()
	runningSnapshot := make(map[store.Kind]int, len(m.running))
	for k, v := range m.running {
		runningSnapshot[k] = v
	}
	total := len(m.inFlight)
	m.mu.Unlock()

	selected := m.cfg.Scheduler.Select(runningSnapshot, total)
	m.cfg.Metrics.AddAdmitted(len(selected))
	for _, rec := range selected {
		rec := rec
		recCtx, cancel := context.WithCancel(ctx)

		m.mu.Lock()
		m.inFlight[rec.ID] = cancel
		m.running[rec.Kind]++
		running := m.running[rec.Kind]
		m.mu.Unlock()

		m.cfg.Metrics.SetUnitsRunning(rec.Kind, running)

		go func() {
			err := m.cfg.Executor.Run(recCtx, rec.ID)
			select {
			case m.done <- outcome{recordID: rec.ID, err: err}:
			default:
				slog.Error("manager: outcome channel full, dropping", "record", rec.ID)
			}
		}()
	}
}

// decrementRunning removes one in-flight count for kind, guarding against
// underflow if bookkeeping and reality ever diverge.
func (m *Manager) decrementRunning(kind store.Kind) {
	m.mu.Lock()
	if m.running[kind] > 0 {
		m.running[kind]--
	}
	running := m.running[kind]
	m.mu.Unlock()
	m.cfg.Metrics.SetUnitsRunning(kind, running)
}

// ApprovePlan runs the Spawn Decider over a Complete Plan's artifact,
// materializing its Spec children. This is the only path by which a Plan
// spawns children; see the comment on spawnChildren for why completion
// alone does not.
func (m *Manager) ApprovePlan(id string) error {
	rec, err := m.cfg.Store.Get(id)
	if err != nil {
		return fmt.Errorf("manager: approve plan: %w", err)
	}
	if rec.Kind != store.KindPlan {
		return fmt.Errorf("manager: approve plan: %s is not a plan", id)
	}
	if rec.Status != store.StatusComplete {
		return fmt.Errorf("manager: approve plan: %s is not complete", id)
	}

	m.mu.Lock()
	if m.spawnedOf[rec.ID] {
		m.mu.Unlock()
		return nil
	}
	m.spawnedOf[rec.ID] = true
	m.mu.Unlock()

	artifact := m.readPrimaryArtifact(rec)
	children := spawn.DecideWithLimits(rec, artifact, m.cfg.MaxIterationsFor)
	for _, child := range children {
		if err := m.cfg.Store.Create(child); err != nil {
			return fmt.Errorf("manager: approve plan: create child: %w", err)
		}
	}
	m.wake()
	return nil
}

// PreviewPlan returns a Plan's primary artifact text along with the steps
// the Spawn Decider would turn into Spec children, without materializing
// them. Used by the daemon's preview-plan request so a caller can inspect
// a Plan before deciding whether to approve or reject it.
func (m *Manager) PreviewPlan(id string) (string, []spawn.Step, error) {
	rec, err := m.cfg.Store.Get(id)
	if err != nil {
		return "", nil, fmt.Errorf("manager: preview plan: %w", err)
	}
	if rec.Kind != store.KindPlan {
		return "", nil, fmt.Errorf("manager: preview plan: %s is not a plan", id)
	}
	artifact := m.readPrimaryArtifact(rec)
	return artifact, spawn.ParseArtifact(artifact), nil
}

// IteratePlan re-runs a terminal Plan: every descendant record is
// invalidated first (spec.md's "a parent's re-execution... invalidates
// the subtree to Invalidated"), then the Plan itself is reset to Pending
// with its iteration count and spawn state cleared, and feedback is
// recorded into its context so the next run can incorporate it.
func (m *Manager) IteratePlan(id, feedback string) error {
	rec, err := m.cfg.Store.Get(id)
	if err != nil {
		return fmt.Errorf("manager: iterate plan: %w", err)
	}
	if rec.Kind != store.KindPlan {
		return fmt.Errorf("manager: iterate plan: %s is not a plan", id)
	}
	if !rec.Status.Terminal() {
		return fmt.Errorf("manager: iterate plan: %s is still active", id)
	}

	m.invalidateSubtree(id)

	m.mu.Lock()
	delete(m.spawnedOf, id)
	m.mu.Unlock()

	_, err = m.cfg.Store.Mutate(id, func(r *store.Record) error {
		r.Status = store.StatusPending
		r.Iteration = 0
		r.FeedbackHistory = nil
		if r.Context == nil {
			r.Context = make(map[string]string)
		}
		r.Context["iterate_feedback"] = feedback
		return nil
	})
	if err != nil {
		return fmt.Errorf("manager: iterate plan: %w", err)
	}
	m.wake()
	return nil
}

// invalidateSubtree marks every descendant of id Invalidated, depth-first,
// so a re-iterated Plan doesn't leave stale Specs/Phases/Code behind.
func (m *Manager) invalidateSubtree(id string) {
	for _, child := range m.cfg.Store.Children(id) {
		m.invalidateSubtree(child.ID)
		if err := m.RequestControl(child.ID, signalbus.Invalidate); err != nil {
			slog.Warn("manager: invalidate subtree", "record", child.ID, "error", err)
		}
	}
}
