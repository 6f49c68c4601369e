package scheduler

import (
	"sort"

	"github.com/loopr-dev/loopr/internal/store"
)

// Limits bounds how many records the scheduler may select in one pass.
type Limits struct {
	MaxConcurrent int
	MaxPerKind    map[store.Kind]int
}

// RateGate is satisfied by the rate-limit Coordinator: when it reports
// false, Select returns no new admissions at all, though already-running
// work is untouched since Select never touches Running records.
type RateGate interface {
	Allow() bool
}

// Store is the subset of store.Store the scheduler needs.
type Store interface {
	List(f store.Filter) []*store.Record
	Get(id string) (*store.Record, error)
	Depth(id string) int
}

// Scheduler selects the next batch of records to admit for execution.
type Scheduler struct {
	st     Store
	gate   RateGate
	cfg    Config
	limits Limits
}

// New returns a Scheduler reading from st, gated by gate, using cfg's
// priority weights and limits.
func New(st Store, gate RateGate, cfg Config, limits Limits) *Scheduler {
	return &Scheduler{st: st, gate: gate, cfg: cfg, limits: limits}
}

// candidate pairs a record with its computed priority for sorting.
type candidate struct {
	rec      *store.Record
	priority int
}

// Select returns the next records to admit, most important first, honoring
// MaxConcurrent and any per-kind caps. currentlyRunning is the count of
// records already executing, broken down by kind, so caps account for
// in-flight work as well as what's about to be selected. Returns nil when
// the rate-limit coordinator denies admission or no slots remain.
func (s *Scheduler) Select(currentlyRunning map[store.Kind]int, totalRunning int) []*store.Record {
	if s.gate != nil && !s.gate.Allow() {
		return nil
	}

	slotsLeft := s.limits.MaxConcurrent - totalRunning
	if slotsLeft <= 0 {
		return nil
	}

	pending := s.st.List(filterByStatus(store.StatusPending))
	paused := s.st.List(filterByStatus(store.StatusPaused))
	candidates := make([]*store.Record, 0, len(pending)+len(paused))
	candidates = append(candidates, pending...)
	candidates = append(candidates, paused...)

	scored := make([]candidate, 0, len(candidates))
	for _, rec := range candidates {
		if !s.isRunnable(rec) {
			continue
		}
		depth := s.st.Depth(rec.ID)
		scored = append(scored, candidate{rec: rec, priority: s.cfg.Priority(rec, depth)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].priority != scored[j].priority {
			return scored[i].priority > scored[j].priority
		}
		if scored[i].rec.CreatedAt != scored[j].rec.CreatedAt {
			return scored[i].rec.CreatedAt < scored[j].rec.CreatedAt
		}
		return scored[i].rec.ID < scored[j].rec.ID
	})

	perKindUsed := make(map[store.Kind]int, len(currentlyRunning))
	for k, v := range currentlyRunning {
		perKindUsed[k] = v
	}

	selected := make([]*store.Record, 0, slotsLeft)
	for _, c := range scored {
		if len(selected) >= slotsLeft {
			break
		}
		if max, ok := s.limits.MaxPerKind[c.rec.Kind]; ok && perKindUsed[c.rec.Kind] >= max {
			continue
		}
		selected = append(selected, c.rec)
		perKindUsed[c.rec.Kind]++
	}

	return selected
}

// isRunnable checks the parent-complete condition for rec using the live
// store. Artifact existence is checked by the Spawn Decider before a
// child record is ever created, so Select doesn't re-check it here.
func (s *Scheduler) isRunnable(rec *store.Record) bool {
	if !rec.Status.CanStart() {
		return false
	}
	if rec.ParentID != "" {
		parent, err := s.st.Get(rec.ParentID)
		if err != nil || parent.Status != store.StatusComplete {
			return false
		}
	}
	return true
}

// filterByStatus builds a store.Filter selecting a single status.
func filterByStatus(status store.Status) store.Filter {
	return store.Filter{Status: status, StatusSet: true}
}
