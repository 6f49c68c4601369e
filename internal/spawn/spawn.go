package spawn

import (
	"fmt"

	"github.com/loopr-dev/loopr/internal/store"
)

// defaultMaxIterations is used for spawned children when the parent's
// context doesn't carry an override. It mirrors the teacher's modest
// default iteration budgets (5-10) rather than an unbounded loop.
const defaultMaxIterations = 10

// Decide returns the child records that should be created now that parent
// has transitioned to Complete, parsing artifactText (the parent's primary
// output artifact). A Plan or Spec whose artifact is missing, empty, or
// fails to parse produces no children — its own completion is unaffected
// either way. A Phase ignores its artifact.
//
// Plan  → one Spec per parsed step.
// Spec  → one Phase per parsed step.
// Phase → exactly one Code record, regardless of how many steps parse
//         (a Phase's artifact describes one unit of code to write).
// Code  → never spawns children; it's the leaf of the tree.
//
// Decide uses defaultMaxIterations for every spawned child. Callers that
// resolve a per-kind budget from config.Resolve should use
// DecideWithLimits instead.
func Decide(parent *store.Record, artifactText string) []*store.Record {
	return DecideWithLimits(parent, artifactText, nil)
}

// DecideWithLimits behaves like Decide, but sources each child's
// MaxIterations from maxIterFor(childKind) when maxIterFor is non-nil and
// returns a positive value, falling back to defaultMaxIterations
// otherwise. Grounded on spec.md §6's per-kind Definition.max_iterations,
// resolved ahead of time by the caller via config.Resolve.
func DecideWithLimits(parent *store.Record, artifactText string, maxIterFor func(store.Kind) int) []*store.Record {
	switch parent.Kind {
	case store.KindPlan:
		return spawnSteps(parent, artifactText, store.KindSpec, "spec", maxIterFor)
	case store.KindSpec:
		return spawnSteps(parent, artifactText, store.KindPhase, "phase", maxIterFor)
	case store.KindPhase:
		return spawnSingleCode(parent, maxIterFor)
	default:
		return nil
	}
}

func resolveMaxIterations(kind store.Kind, maxIterFor func(store.Kind) int) int {
	if maxIterFor != nil {
		if n := maxIterFor(kind); n > 0 {
			return n
		}
	}
	return defaultMaxIterations
}

func spawnSteps(parent *store.Record, artifactText string, childKind store.Kind, triggerPrefix string, maxIterFor func(store.Kind) int) []*store.Record {
	steps := ParseArtifact(artifactText)
	if len(steps) == 0 {
		return nil
	}

	maxIter := resolveMaxIterations(childKind, maxIterFor)
	children := make([]*store.Record, 0, len(steps))
	for _, step := range steps {
		ctx := map[string]string{
			"title":       step.Title,
			"description": step.Description,
			"step_index":  fmt.Sprintf("%d", step.Index),
		}
		trigger := StepTrigger(triggerPrefix, step.Index)
		children = append(children, store.NewChild(childKind, parent.ID, trigger, maxIter, ctx))
	}
	return children
}

func spawnSingleCode(parent *store.Record, maxIterFor func(store.Kind) int) []*store.Record {
	ctx := map[string]string{
		"title": parent.Context["title"],
	}
	return []*store.Record{
		store.NewChild(store.KindCode, parent.ID, "", resolveMaxIterations(store.KindCode, maxIterFor), ctx),
	}
}
