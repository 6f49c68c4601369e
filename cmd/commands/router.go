package commands

import (
	"context"
	"fmt"

	"github.com/loopr-dev/loopr/internal/executor"
	"github.com/loopr-dev/loopr/internal/store"
)

// kindRouter dispatches manager.Runner.Run to the Executor built for a
// record's kind, so each of plan/spec/phase/code runs with its own
// config.Resolve-derived prompt budget and validation command instead of
// one process-wide Executor.Config. internal/executor and internal/
// config are otherwise untouched; this is the seam cmd/loopr uses to
// make per-kind Resolve results reach a running record.
type kindRouter struct {
	store     *store.Store
	executors map[store.Kind]*executor.Executor
}

func newKindRouter(st *store.Store, executors map[store.Kind]*executor.Executor) *kindRouter {
	return &kindRouter{store: st, executors: executors}
}

// Run implements manager.Runner.
func (r *kindRouter) Run(ctx context.Context, recordID string) error {
	rec, err := r.store.Get(recordID)
	if err != nil {
		return fmt.Errorf("kind router: %w", err)
	}
	ex, ok := r.executors[rec.Kind]
	if !ok {
		return fmt.Errorf("kind router: no executor configured for kind %q", rec.Kind)
	}
	return ex.Run(ctx, recordID)
}
