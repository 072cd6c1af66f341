package curator

import (
	"context"
	"strings"
	"testing"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/goal"
	"github.com/telos-ai/telos/pkg/knowledge"
	"github.com/telos-ai/telos/pkg/memory"
)

func fixture(t *testing.T) (*Curator, *core.Task) {
	t.Helper()
	ctx := context.Background()

	goals := goal.NewManager(goal.NewMemStore())
	if _, err := goals.Init(ctx, "m1", "migrate the billing service to the new queue", []string{"drain old queue", "cut over"}); err != nil {
		t.Fatalf("goal init: %v", err)
	}

	log := memory.NewLog()
	record := core.NewReflexionRecord("m1", "t0")
	record.Category = core.CategoryTransient
	record.Reflection = "queue connection refused until credentials rotated"
	if err := log.Append(ctx, record); err != nil {
		t.Fatalf("append: %v", err)
	}

	registry := capability.NewRegistry()
	registry.Register(capability.ManifestEntry{
		ToolName:    "queue_publish",
		Description: "publish a message to the work queue",
		Confidence:  0.9,
	})

	kb := knowledge.NewMemStore()
	if _, err := kb.Write(ctx, "queue-heuristics", "always drain before cutover", 0); err != nil {
		t.Fatalf("kb write: %v", err)
	}

	curator := New(goals, memory.NewRecaller(log), registry, WithKnowledge(kb))

	task := core.NewTask("m1", "publish drain notice to the queue")
	return curator, task
}

func TestBuildContextOpensWithRecitation(t *testing.T) {
	curator, task := fixture(t)
	out, err := curator.BuildContext(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !strings.HasPrefix(out, "## Prime Directive\nmigrate the billing service") {
		t.Fatalf("context must open with the recitation, got:\n%s", out)
	}
	if !strings.Contains(out, "drain old queue") {
		t.Fatal("remaining checklist items missing")
	}
}

func TestBuildContextCarriesMemoryKnowledgeAndTools(t *testing.T) {
	curator, task := fixture(t)
	out, err := curator.BuildContext(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !strings.Contains(out, "credentials rotated") {
		t.Fatal("relevant reflexion lesson missing")
	}
	if !strings.Contains(out, "always drain before cutover") {
		t.Fatal("knowledge heuristic missing")
	}
	if !strings.Contains(out, "queue_publish") {
		t.Fatal("capability manifest missing")
	}
}

func TestBuildContextHonorsBudget(t *testing.T) {
	ctx := context.Background()
	goals := goal.NewManager(goal.NewMemStore())
	if _, err := goals.Init(ctx, "m1", "directive", nil); err != nil {
		t.Fatalf("goal init: %v", err)
	}

	kb := knowledge.NewMemStore()
	if _, err := kb.Write(ctx, "huge", strings.Repeat("x", 4096), 0); err != nil {
		t.Fatalf("kb write: %v", err)
	}

	curator := New(goals, memory.NewRecaller(memory.NewLog()), capability.NewRegistry(),
		WithKnowledge(kb), WithBudget(512))

	task := core.NewTask("m1", "anything")
	out, err := curator.BuildContext(ctx, task)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(out) > 512 {
		t.Fatalf("context length %d exceeds budget", len(out))
	}
	if strings.Contains(out, strings.Repeat("x", 1024)) {
		t.Fatal("oversized document content should have been elided")
	}
}

func TestBuildContextMentionsRetry(t *testing.T) {
	curator, task := fixture(t)
	task.RetryCount = 2
	out, err := curator.BuildContext(context.Background(), task)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !strings.Contains(out, "retry 2") {
		t.Fatal("retry count missing from context")
	}
}
