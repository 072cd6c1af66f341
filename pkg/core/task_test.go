package core

import "testing"

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask("m1", "compile the project")
	if task.ID == "" {
		t.Fatalf("expected generated id")
	}
	if task.Status != TaskStatusPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}
	if task.RetryCount != 0 {
		t.Fatalf("expected zero retry count")
	}
	if task.Terminal() {
		t.Fatalf("pending task must not be terminal")
	}
}

func TestTerminalStates(t *testing.T) {
	task := NewTask("m1", "x")
	task.Status = TaskStatusFailed
	if task.Terminal() {
		t.Fatalf("failed is not terminal, tier 1 may requeue it")
	}
	task.Status = TaskStatusSucceeded
	if !task.Terminal() {
		t.Fatalf("succeeded is terminal")
	}
	task.Status = TaskStatusBlocked
	if !task.Terminal() {
		t.Fatalf("blocked is terminal")
	}
}

func TestHighComplexityTags(t *testing.T) {
	task := NewTask("m1", "choose a storage engine")
	if task.HighComplexity() {
		t.Fatalf("untagged task should not be high complexity")
	}
	task.Tags = []string{TagArchitectureSelection}
	if !task.HighComplexity() {
		t.Fatalf("architecture-selection should be high complexity")
	}
}

func TestGoalStateRemaining(t *testing.T) {
	gs := GoalState{
		MissionID:      "m1",
		PrimeDirective: "ship it",
		Checklist: []ChecklistItem{
			{Item: "build", Done: true},
			{Item: "test", Done: false},
		},
	}
	remaining := gs.Remaining()
	if len(remaining) != 1 || remaining[0] != "test" {
		t.Fatalf("unexpected remaining: %v", remaining)
	}
	if gs.Complete() {
		t.Fatalf("goal state is not complete")
	}
}
