package plan

import (
	"context"
	"testing"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/reasoner"
)

func specPlan(missionID string, specs ...reasoner.TaskSpec) *Plan {
	return FromSpecs(missionID, specs)
}

func TestValidateAcceptsDAG(t *testing.T) {
	p := specPlan("m1",
		reasoner.TaskSpec{ID: "a", Description: "first"},
		reasoner.TaskSpec{ID: "b", Description: "second", DependsOn: []string{"a"}},
		reasoner.TaskSpec{ID: "c", Description: "third", DependsOn: []string{"a", "b"}},
	)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	p := specPlan("m1",
		reasoner.TaskSpec{ID: "a", Description: "first", DependsOn: []string{"c"}},
		reasoner.TaskSpec{ID: "b", Description: "second", DependsOn: []string{"a"}},
		reasoner.TaskSpec{ID: "c", Description: "third", DependsOn: []string{"b"}},
	)
	err := p.Validate()
	if !errors.HasCode(err, errors.CodeInvalidPlan) {
		t.Fatalf("want invalid plan, got %v", err)
	}
}

func TestValidateRejectsDanglingDependency(t *testing.T) {
	p := specPlan("m1",
		reasoner.TaskSpec{ID: "a", Description: "first", DependsOn: []string{"ghost"}},
	)
	if err := p.Validate(); !errors.HasCode(err, errors.CodeInvalidPlan) {
		t.Fatalf("want invalid plan, got %v", err)
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	p := specPlan("m1",
		reasoner.TaskSpec{ID: "a", Description: "first"},
		reasoner.TaskSpec{ID: "a", Description: "again"},
	)
	if err := p.Validate(); !errors.HasCode(err, errors.CodeInvalidPlan) {
		t.Fatalf("want invalid plan, got %v", err)
	}
}

func seededManager(t *testing.T, specs ...reasoner.TaskSpec) *Manager {
	t.Helper()
	manager := NewManager(NewMemStore())
	if err := manager.Create(context.Background(), specPlan("m1", specs...)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return manager
}

func TestNextRunnableRespectsDependencies(t *testing.T) {
	ctx := context.Background()
	manager := seededManager(t,
		reasoner.TaskSpec{ID: "t1", Description: "setup"},
		reasoner.TaskSpec{ID: "t2", Description: "build", DependsOn: []string{"t1"}},
	)

	next, err := manager.NextRunnable(ctx, "m1")
	if err != nil {
		t.Fatalf("NextRunnable: %v", err)
	}
	if next == nil || next.ID != "t1" {
		t.Fatalf("next = %+v, want t1", next)
	}

	if _, err := manager.Succeed(ctx, "t1", "done"); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	next, _ = manager.NextRunnable(ctx, "m1")
	if next == nil || next.ID != "t2" {
		t.Fatalf("next = %+v, want t2", next)
	}
}

func TestNextRunnableDeterministicTieBreak(t *testing.T) {
	manager := seededManager(t,
		reasoner.TaskSpec{ID: "t9", Description: "late id, inserted first"},
		reasoner.TaskSpec{ID: "t1", Description: "early id, inserted second"},
	)
	for i := 0; i < 3; i++ {
		next, err := manager.NextRunnable(context.Background(), "m1")
		if err != nil {
			t.Fatalf("NextRunnable: %v", err)
		}
		if next.ID != "t1" {
			t.Fatalf("tie must break to lowest id, got %s", next.ID)
		}
	}
}

func TestFailedDependencyGatesDependents(t *testing.T) {
	ctx := context.Background()
	manager := seededManager(t,
		reasoner.TaskSpec{ID: "t1", Description: "setup"},
		reasoner.TaskSpec{ID: "t2", Description: "build", DependsOn: []string{"t1"}},
	)
	if _, err := manager.Fail(ctx, "t1", "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	next, _ := manager.NextRunnable(ctx, "m1")
	if next != nil {
		t.Fatalf("t2 must not run behind a failed dependency, got %+v", next)
	}
}

func TestInjectBeforeMakesCorrectivePrerequisite(t *testing.T) {
	ctx := context.Background()
	manager := seededManager(t,
		reasoner.TaskSpec{ID: "t1", Description: "deploy"},
	)
	if _, err := manager.Fail(ctx, "t1", "missing package"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	corrective := core.NewTask("m1", "install the missing package")
	corrective.ID = "t1-fix-1"
	if err := manager.InjectBefore(ctx, "t1", corrective); err != nil {
		t.Fatalf("InjectBefore: %v", err)
	}
	if _, err := manager.Requeue(ctx, "t1"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	next, _ := manager.NextRunnable(ctx, "m1")
	if next == nil || next.ID != "t1-fix-1" {
		t.Fatalf("corrective must run first, got %+v", next)
	}

	if _, err := manager.Succeed(ctx, "t1-fix-1", "installed"); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	next, _ = manager.NextRunnable(ctx, "m1")
	if next == nil || next.ID != "t1" {
		t.Fatalf("original task should be runnable again, got %+v", next)
	}
}

func TestSettledAndAllSucceeded(t *testing.T) {
	ctx := context.Background()
	manager := seededManager(t,
		reasoner.TaskSpec{ID: "t1", Description: "only"},
	)

	settled, _ := manager.Settled(ctx, "m1")
	if settled {
		t.Fatal("pending runnable task means not settled")
	}

	if _, err := manager.Succeed(ctx, "t1", "ok"); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	settled, _ = manager.Settled(ctx, "m1")
	if !settled {
		t.Fatal("all terminal, should be settled")
	}
	all, _ := manager.AllSucceeded(ctx, "m1")
	if !all {
		t.Fatal("AllSucceeded should be true")
	}
}

func TestParseRejectsCyclicPlanFile(t *testing.T) {
	data := []byte(`
mission: build the service
tasks:
  - id: a
    description: first
    depends_on: [b]
  - id: b
    description: second
    depends_on: [a]
`)
	_, err := Parse(data, ".yaml")
	if !errors.HasCode(err, errors.CodeInvalidPlan) {
		t.Fatalf("want invalid plan, got %v", err)
	}
}

func TestParseYAMLPlanFile(t *testing.T) {
	data := []byte(`
mission: build the service
checklist:
  - compiles
  - tests pass
tasks:
  - id: scaffold
    description: create project layout
  - id: implement
    description: write the handlers
    depends_on: [scaffold]
    tags: [architecture-selection]
`)
	parsed, err := Parse(data, ".yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.PrimeDirective != "build the service" {
		t.Fatalf("mission = %q", parsed.PrimeDirective)
	}
	if len(parsed.Specs) != 2 || len(parsed.Checklist) != 2 {
		t.Fatalf("parsed = %+v", parsed)
	}
	if parsed.Specs[1].Tags[0] != core.TagArchitectureSelection {
		t.Fatalf("tags = %v", parsed.Specs[1].Tags)
	}
}
