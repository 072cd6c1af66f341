package protocol

import (
	"context"
	"fmt"
	"testing"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/escalation"
	"github.com/telos-ai/telos/pkg/knowledge"
	"github.com/telos-ai/telos/pkg/memory"
	"github.com/telos-ai/telos/pkg/plan"
	"github.com/telos-ai/telos/pkg/reasoner"
	"github.com/telos-ai/telos/pkg/reflexion"
)

type fixture struct {
	engine   *Engine
	plans    *plan.Manager
	log      *memory.Log
	kb       *knowledge.MemStore
	registry *capability.Registry
	boundary *escalation.ChannelBoundary
	script   *reasoner.Scripted
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	plans := plan.NewManager(plan.NewMemStore())
	built := plan.FromSpecs("m1", []reasoner.TaskSpec{
		{ID: "t1", Description: "deploy the service"},
	})
	if err := plans.Create(context.Background(), built); err != nil {
		t.Fatalf("Create: %v", err)
	}

	log := memory.NewLog()
	kb := knowledge.NewMemStore()
	registry := capability.NewRegistry()
	boundary := escalation.NewChannelBoundary(8, nil)
	script := &reasoner.Scripted{}

	tier1 := NewTier1(plans, script, log, boundary, DefaultMaxRetries, nil)
	tier2 := NewTier2(plans, script, script, kb, registry, log, boundary, nil)
	return &fixture{
		engine:   NewEngine(tier1, tier2, nil),
		plans:    plans,
		log:      log,
		kb:       kb,
		registry: registry,
		boundary: boundary,
		script:   script,
	}
}

func transientEval() reflexion.EvaluationResult {
	return reflexion.EvaluationResult{
		Score:      1,
		Class:      reflexion.ClassMissingDependency,
		Reflection: "package missing",
	}
}

func TestTier1InjectsCorrectiveAndRequeues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.script.Hypotheses = []reasoner.Hypothesis{
		{Cause: "package not installed", CorrectiveDescription: "install the package"},
	}

	if _, err := f.plans.Fail(ctx, "t1", "command not found"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	attempt := reflexion.Attempt{MissionID: "m1", TaskID: "t1", Observation: "sh: pkg: command not found"}

	outcome, err := f.engine.Handle(ctx, "t1", attempt, transientEval())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if outcome != OutcomeRetried {
		t.Fatalf("outcome = %s", outcome)
	}

	task, _ := f.plans.Task(ctx, "t1")
	if task.Status != core.TaskStatusPending || task.RetryCount != 1 {
		t.Fatalf("task = %+v", task)
	}

	// corrective must be the next runnable, ahead of the original
	next, _ := f.plans.NextRunnable(ctx, "m1")
	if next == nil || next.ID != "t1-fix-1" {
		t.Fatalf("next = %+v, want t1-fix-1", next)
	}

	records, _ := f.log.ByTask(ctx, "t1")
	if len(records) != 1 || records[0].Category != core.CategoryCorrective {
		t.Fatalf("records = %+v", records)
	}
}

func TestTier1CircuitBreakerAfterBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < DefaultMaxRetries; i++ {
		f.script.Hypotheses = append(f.script.Hypotheses, reasoner.Hypothesis{
			Cause:                 fmt.Sprintf("hypothesis %d", i+1),
			CorrectiveDescription: fmt.Sprintf("corrective %d", i+1),
		})
	}

	attempt := reflexion.Attempt{MissionID: "m1", TaskID: "t1", Observation: "identical failure"}

	// failures one through three inject correctives
	for i := 1; i <= DefaultMaxRetries; i++ {
		if _, err := f.plans.Fail(ctx, "t1", "identical failure"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		outcome, err := f.engine.Handle(ctx, "t1", attempt, transientEval())
		if err != nil {
			t.Fatalf("Handle %d: %v", i, err)
		}
		if outcome != OutcomeRetried {
			t.Fatalf("failure %d outcome = %s", i, outcome)
		}
		task, _ := f.plans.Task(ctx, "t1")
		if task.RetryCount != i {
			t.Fatalf("retry count after failure %d = %d", i, task.RetryCount)
		}
	}

	// the fourth identical failure trips the breaker
	if _, err := f.plans.Fail(ctx, "t1", "identical failure"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	outcome, err := f.engine.Handle(ctx, "t1", attempt, transientEval())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if outcome != OutcomeBlocked {
		t.Fatalf("outcome = %s, want blocked", outcome)
	}

	task, _ := f.plans.Task(ctx, "t1")
	if task.Status != core.TaskStatusBlocked {
		t.Fatalf("status = %s", task.Status)
	}

	select {
	case esc := <-f.boundary.Escalations():
		if esc.Reason != escalation.ReasonCircuitBreaker || esc.TaskID != "t1" {
			t.Fatalf("escalation = %+v", esc)
		}
		// the payload carries the task's full reflexion trail
		if len(esc.History) != DefaultMaxRetries {
			t.Fatalf("escalation history = %d records, want %d", len(esc.History), DefaultMaxRetries)
		}
		for _, record := range esc.History {
			if record.TaskID != "t1" || record.Category != core.CategoryCorrective {
				t.Fatalf("history record = %+v", record)
			}
		}
	default:
		t.Fatal("circuit breaker must cross the human boundary")
	}

	// exactly three corrective records across the lifecycle
	records, _ := f.log.ByTask(ctx, "t1")
	correctives := 0
	for _, record := range records {
		if record.Category == core.CategoryCorrective {
			correctives++
		}
	}
	if correctives != DefaultMaxRetries {
		t.Fatalf("corrective records = %d, want %d", correctives, DefaultMaxRetries)
	}
}

func TestTier2ResolvesCapabilityGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.script.Findings = [][]reasoner.Finding{{
		{Source: "docs", Content: "pdf_extract ships with the toolbox addon"},
	}}
	f.script.Heuristics = []string{"Install the toolbox addon to expose pdf_extract. Then pass the file path as input."}

	gapErr := errors.New(errors.CodeCapabilityGap, `tool "pdf_extract" is not in the capability registry`, nil)
	attempt := reflexion.Attempt{
		MissionID:   "m1",
		TaskID:      "t1",
		Tool:        "pdf_extract",
		Action:      "extract text from the contract",
		Observation: gapErr.Error(),
		Err:         gapErr,
	}
	eval := reflexion.EvaluationResult{Score: 0, Class: reflexion.ClassCapabilityGap, Reflection: "missing tool"}

	outcome, err := f.engine.Handle(ctx, "t1", attempt, eval)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if outcome != OutcomeRequeued {
		t.Fatalf("outcome = %s", outcome)
	}

	// task is pending again with the retry budget untouched
	task, _ := f.plans.Task(ctx, "t1")
	if task.Status != core.TaskStatusPending || task.RetryCount != 0 {
		t.Fatalf("task = %+v", task)
	}
	if task.EscalationTier != 2 {
		t.Fatalf("escalation tier = %d", task.EscalationTier)
	}

	// knowledge base gained a versioned document
	doc, err := f.kb.Read(ctx, "capability-pdf_extract")
	if err != nil {
		t.Fatalf("knowledge read: %v", err)
	}
	if doc.Version != 1 {
		t.Fatalf("doc version = %d", doc.Version)
	}

	// the learned capability is now registered
	entry, ok := f.registry.Get("pdf_extract")
	if !ok {
		t.Fatal("researched tool must be registered")
	}
	if entry.Confidence != learnedConfidence {
		t.Fatalf("confidence = %v", entry.Confidence)
	}
}

func TestTier2SecondGapVersionsTheDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.script.Findings = [][]reasoner.Finding{
		{{Source: "docs", Content: "first"}},
		{{Source: "docs", Content: "second"}},
	}
	f.script.Heuristics = []string{"first heuristic", "refined heuristic"}

	attempt := reflexion.Attempt{MissionID: "m1", TaskID: "t1", Tool: "pdf_extract", Action: "extract"}
	eval := reflexion.EvaluationResult{Class: reflexion.ClassCapabilityGap}

	if _, err := f.engine.Handle(ctx, "t1", attempt, eval); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if _, err := f.engine.Handle(ctx, "t1", attempt, eval); err != nil {
		t.Fatalf("second Handle: %v", err)
	}

	doc, _ := f.kb.Read(ctx, "capability-pdf_extract")
	if doc.Version != 2 {
		t.Fatalf("version = %d, want 2", doc.Version)
	}
}

func TestTier2ResearchExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.script.Findings = [][]reasoner.Finding{{}} // research comes back empty

	// the failed attempt already left a reflexion record
	failed := core.NewReflexionRecord("m1", "t1")
	failed.Tool = "unknowable"
	failed.Observation = "no such tool"
	failed.Category = core.CategoryGap
	if err := f.log.Append(ctx, failed); err != nil {
		t.Fatalf("Append: %v", err)
	}

	attempt := reflexion.Attempt{MissionID: "m1", TaskID: "t1", Tool: "unknowable"}
	eval := reflexion.EvaluationResult{Class: reflexion.ClassCapabilityGap}

	outcome, err := f.engine.Handle(ctx, "t1", attempt, eval)
	if outcome != OutcomeBlocked {
		t.Fatalf("outcome = %s", outcome)
	}
	if !errors.HasCode(err, errors.CodeResearchExhausted) {
		t.Fatalf("err = %v", err)
	}

	task, _ := f.plans.Task(ctx, "t1")
	if task.Status != core.TaskStatusBlocked {
		t.Fatalf("status = %s", task.Status)
	}

	select {
	case esc := <-f.boundary.Escalations():
		if esc.Reason != escalation.ReasonResearchExhausted {
			t.Fatalf("reason = %s", esc.Reason)
		}
		if len(esc.History) != 1 || esc.History[0].Observation != "no such tool" {
			t.Fatalf("escalation history = %+v", esc.History)
		}
	default:
		t.Fatal("exhausted research must cross the human boundary")
	}
}

func TestEngineIgnoresAmbiguousFailures(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.engine.Handle(context.Background(), "t1",
		reflexion.Attempt{MissionID: "m1", TaskID: "t1"},
		reflexion.EvaluationResult{Class: reflexion.ClassAmbiguous})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if outcome != OutcomeNone {
		t.Fatalf("ambiguous failures are not protocol business, got %s", outcome)
	}
}
