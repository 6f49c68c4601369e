package spawn

import (
	"testing"

	"github.com/loopr-dev/loopr/internal/store"
)

const samplePlan = `# Plan

## Spec 1: Authentication
Build login and session handling.

## Spec 2: Billing
Build invoicing.
`

const sampleNumbered = `Notes

1. First thing to do
2. Second thing to do
3. Third thing to do
`

func TestParseArtifactHeaders(t *testing.T) {
	steps := ParseArtifact(samplePlan)
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Title != "Authentication" {
		t.Fatalf("unexpected title: %q", steps[0].Title)
	}
}

func TestParseArtifactNumberedFallback(t *testing.T) {
	steps := ParseArtifact(sampleNumbered)
	if len(steps) != 3 {
		t.Fatalf("expected 3 numbered steps, got %d", len(steps))
	}
}

func TestParseArtifactEmptyReturnsNil(t *testing.T) {
	if steps := ParseArtifact("no structure here"); steps != nil {
		t.Fatalf("expected nil for unstructured text, got %v", steps)
	}
}

func TestDecidePlanSpawnsSpecs(t *testing.T) {
	plan := store.NewPlan("task", 10)
	plan.Status = store.StatusComplete

	children := Decide(plan, samplePlan)
	if len(children) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(children))
	}
	for _, c := range children {
		if c.Kind != store.KindSpec {
			t.Fatalf("expected Spec children, got %s", c.Kind)
		}
		if c.ParentID != plan.ID {
			t.Fatalf("expected parent id %s, got %s", plan.ID, c.ParentID)
		}
	}
}

func TestDecidePhaseSpawnsExactlyOneCode(t *testing.T) {
	phase := store.NewChild(store.KindPhase, "spec1", "", 10, nil)
	children := Decide(phase, "anything, phase artifacts don't need step structure")

	if len(children) != 1 {
		t.Fatalf("expected exactly 1 code child, got %d", len(children))
	}
	if children[0].Kind != store.KindCode {
		t.Fatalf("expected Code child, got %s", children[0].Kind)
	}
}

func TestDecideCodeNeverSpawns(t *testing.T) {
	code := store.NewChild(store.KindCode, "phase1", "", 10, nil)
	if children := Decide(code, samplePlan); children != nil {
		t.Fatalf("expected Code to never spawn children, got %v", children)
	}
}

func TestDecideMissingArtifactSpawnsNothing(t *testing.T) {
	plan := store.NewPlan("task", 10)
	if children := Decide(plan, ""); children != nil {
		t.Fatalf("expected empty artifact to spawn nothing, got %v", children)
	}
}

func TestDecideWithLimitsUsesResolvedBudgetPerKind(t *testing.T) {
	plan := store.NewPlan("task", 10)
	plan.Status = store.StatusComplete

	limits := map[store.Kind]int{store.KindSpec: 25}
	children := DecideWithLimits(plan, samplePlan, func(k store.Kind) int { return limits[k] })
	if len(children) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(children))
	}
	for _, c := range children {
		if c.MaxIterations != 25 {
			t.Fatalf("expected resolved MaxIterations 25, got %d", c.MaxIterations)
		}
	}
}

func TestDecideWithLimitsFallsBackOnNonPositive(t *testing.T) {
	phase := store.NewChild(store.KindPhase, "spec1", "", 10, nil)
	children := DecideWithLimits(phase, "anything", func(store.Kind) int { return 0 })
	if len(children) != 1 || children[0].MaxIterations != defaultMaxIterations {
		t.Fatalf("expected fallback to defaultMaxIterations, got %+v", children)
	}
}
