package goal

import (
	"context"
	"testing"
)

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemStore())

	state, err := manager.Init(ctx, "m1", "ship the release", []string{"build", "test", "tag"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if state.Complete() {
		t.Fatal("fresh goal state should not be complete")
	}

	if err := manager.MarkDone(ctx, "m1", "build"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	recited, err := manager.Recite(ctx, "m1")
	if err != nil {
		t.Fatalf("Recite: %v", err)
	}
	if recited.PrimeDirective != "ship the release" {
		t.Fatalf("prime directive = %q", recited.PrimeDirective)
	}
	remaining := recited.Remaining()
	if len(remaining) != 2 || remaining[0] != "test" || remaining[1] != "tag" {
		t.Fatalf("remaining = %v", remaining)
	}

	if err := manager.MarkDone(ctx, "m1", "test"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := manager.MarkDone(ctx, "m1", "tag"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	final, _ := manager.Recite(ctx, "m1")
	if !final.Complete() {
		t.Fatal("all items done, state should be complete")
	}
}

func TestMarkDoneUnknownItemIsIgnored(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemStore())
	if _, err := manager.Init(ctx, "m1", "directive", []string{"only"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := manager.MarkDone(ctx, "m1", "never-planned"); err != nil {
		t.Fatalf("unknown item should be a no-op, got %v", err)
	}
	state, _ := manager.Recite(ctx, "m1")
	if state.Checklist[0].Done {
		t.Fatal("unrelated item was marked done")
	}
}

func TestMemStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	manager := NewManager(store)
	if _, err := manager.Init(ctx, "m1", "directive", []string{"a"}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	loaded, _ := store.Load(ctx, "m1")
	loaded.Checklist[0].Done = true

	fresh, _ := store.Load(ctx, "m1")
	if fresh.Checklist[0].Done {
		t.Fatal("mutating a loaded state leaked into the store")
	}
}
