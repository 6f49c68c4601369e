package commands

import (
	"context"
	"testing"

	"github.com/loopr-dev/loopr/internal/executor"
	"github.com/loopr-dev/loopr/internal/store"
)

func TestKindRouterDispatchesToMatchingExecutor(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rec := store.NewPlan("route me", 5)
	if err := st.Create(rec); err != nil {
		t.Fatalf("store.Create: %v", err)
	}

	router := newKindRouter(st, map[store.Kind]*executor.Executor{})
	if err := router.Run(context.Background(), rec.ID); err == nil {
		t.Fatal("expected an error when no executor is configured for the record's kind")
	}
}

func TestKindRouterErrorsOnUnknownRecord(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	router := newKindRouter(st, map[store.Kind]*executor.Executor{})
	if err := router.Run(context.Background(), "nonexistent"); err == nil {
		t.Fatal("expected an error looking up an unknown record id")
	}
}
