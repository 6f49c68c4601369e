package scheduler

import (
	"testing"

	"github.com/loopr-dev/loopr/internal/store"
)

type fakeStore struct {
	records map[string]*store.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*store.Record)}
}

func (f *fakeStore) add(rec *store.Record) {
	f.records[rec.ID] = rec
}

func (f *fakeStore) List(filter store.Filter) []*store.Record {
	var out []*store.Record
	for _, r := range f.records {
		if filter.StatusSet && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *fakeStore) Get(id string) (*store.Record, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) Depth(id string) int {
	depth := 0
	cur := id
	for {
		r, ok := f.records[cur]
		if !ok || r.ParentID == "" {
			return depth
		}
		cur = r.ParentID
		depth++
	}
}

type alwaysAllow struct{}

func (alwaysAllow) Allow() bool { return true }

type alwaysDeny struct{}

func (alwaysDeny) Allow() bool { return false }

func TestSelectOrdersByPriority(t *testing.T) {
	fs := newFakeStore()
	plan := &store.Record{ID: "plan1", Kind: store.KindPlan, Status: store.StatusPending, CreatedAt: 1000}
	code := &store.Record{ID: "code1", Kind: store.KindCode, Status: store.StatusPending, CreatedAt: 1000}
	fs.add(plan)
	fs.add(code)

	sched := New(fs, alwaysAllow{}, DefaultConfig(), Limits{MaxConcurrent: 10})
	selected := sched.Select(nil, 0)

	if len(selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(selected))
	}
	if selected[0].ID != "code1" {
		t.Fatalf("expected code (higher base priority) first, got %s", selected[0].ID)
	}
}

func TestSelectSkipsWithIncompleteParent(t *testing.T) {
	fs := newFakeStore()
	plan := &store.Record{ID: "plan1", Kind: store.KindPlan, Status: store.StatusRunning, CreatedAt: 1000}
	spec := &store.Record{ID: "spec1", Kind: store.KindSpec, Status: store.StatusPending, ParentID: "plan1", CreatedAt: 1000}
	fs.add(plan)
	fs.add(spec)

	sched := New(fs, alwaysAllow{}, DefaultConfig(), Limits{MaxConcurrent: 10})
	selected := sched.Select(nil, 0)

	if len(selected) != 0 {
		t.Fatalf("expected spec with running parent to be excluded, got %v", selected)
	}
}

func TestSelectRespectsMaxConcurrent(t *testing.T) {
	fs := newFakeStore()
	for i := 0; i < 5; i++ {
		fs.add(&store.Record{ID: string(rune('a' + i)), Kind: store.KindCode, Status: store.StatusPending, CreatedAt: int64(i)})
	}

	sched := New(fs, alwaysAllow{}, DefaultConfig(), Limits{MaxConcurrent: 2})
	selected := sched.Select(nil, 0)

	if len(selected) != 2 {
		t.Fatalf("expected 2 selected under MaxConcurrent cap, got %d", len(selected))
	}
}

func TestSelectRespectsPerKindCap(t *testing.T) {
	fs := newFakeStore()
	fs.add(&store.Record{ID: "code1", Kind: store.KindCode, Status: store.StatusPending, CreatedAt: 1})
	fs.add(&store.Record{ID: "code2", Kind: store.KindCode, Status: store.StatusPending, CreatedAt: 2})
	fs.add(&store.Record{ID: "plan1", Kind: store.KindPlan, Status: store.StatusPending, CreatedAt: 3})

	sched := New(fs, alwaysAllow{}, DefaultConfig(), Limits{
		MaxConcurrent: 10,
		MaxPerKind:    map[store.Kind]int{store.KindCode: 1},
	})
	selected := sched.Select(nil, 0)

	codeCount := 0
	for _, r := range selected {
		if r.Kind == store.KindCode {
			codeCount++
		}
	}
	if codeCount != 1 {
		t.Fatalf("expected per-kind cap of 1 code record, got %d", codeCount)
	}
	if len(selected) != 2 {
		t.Fatalf("expected plan to still be selected alongside the capped code, got %d", len(selected))
	}
}

func TestSelectReturnsNilWhenRateLimited(t *testing.T) {
	fs := newFakeStore()
	fs.add(&store.Record{ID: "code1", Kind: store.KindCode, Status: store.StatusPending, CreatedAt: 1})

	sched := New(fs, alwaysDeny{}, DefaultConfig(), Limits{MaxConcurrent: 10})
	selected := sched.Select(nil, 0)

	if selected != nil {
		t.Fatalf("expected nil selection while rate limited, got %v", selected)
	}
}

func TestPriorityMatchesOriginalFormula(t *testing.T) {
	rec := &store.Record{Kind: store.KindCode, Iteration: 5, CreatedAt: store.NowMillis()}
	got := Priority(rec, 0)
	if got != 80 {
		t.Fatalf("iteration=5 on Code should yield priority 80 (100-20 retry penalty), got %d", got)
	}
}

func TestPriorityRetryPenaltyCapped(t *testing.T) {
	rec := &store.Record{Kind: store.KindCode, Iteration: 20, CreatedAt: store.NowMillis()}
	got := Priority(rec, 0)
	if got != 70 {
		t.Fatalf("iteration=20 on Code should cap retry penalty at 30, yielding 70, got %d", got)
	}
}

func TestPriorityDepthIncreasesScore(t *testing.T) {
	shallow := &store.Record{Kind: store.KindSpec, CreatedAt: store.NowMillis()}
	deep := &store.Record{Kind: store.KindPhase, CreatedAt: store.NowMillis()}

	if Priority(deep, 2) <= Priority(shallow, 1) {
		t.Fatalf("expected deeper phase (80+20) to outrank shallower spec (60+10)")
	}
}

func TestPriorityCodeOutranksPlan(t *testing.T) {
	code := &store.Record{Kind: store.KindCode, CreatedAt: store.NowMillis()}
	plan := &store.Record{Kind: store.KindPlan, CreatedAt: store.NowMillis()}

	if Priority(code, 0) <= Priority(plan, 0) {
		t.Fatal("expected Code to outrank Plan at equal age and depth")
	}
}
