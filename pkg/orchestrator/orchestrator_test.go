package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/curator"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/escalation"
	"github.com/telos-ai/telos/pkg/gateway"
	"github.com/telos-ai/telos/pkg/goal"
	"github.com/telos-ai/telos/pkg/knowledge"
	"github.com/telos-ai/telos/pkg/memory"
	"github.com/telos-ai/telos/pkg/plan"
	"github.com/telos-ai/telos/pkg/protocol"
	"github.com/telos-ai/telos/pkg/react"
	"github.com/telos-ai/telos/pkg/reasoner"
	"github.com/telos-ai/telos/pkg/reflexion"
	"github.com/telos-ai/telos/pkg/tot"
)

type world struct {
	orch     *Orchestrator
	plans    *plan.Manager
	gw       *gateway.Gateway
	registry *capability.Registry
	log      *memory.Log
	kb       *knowledge.MemStore
	boundary *escalation.ChannelBoundary
	script   *reasoner.Scripted
}

func newWorld(t *testing.T) *world {
	t.Helper()

	plans := plan.NewManager(plan.NewMemStore())
	goals := goal.NewManager(goal.NewMemStore())
	log := memory.NewLog()
	kb := knowledge.NewMemStore()
	registry := capability.NewRegistry()
	gw := gateway.New(registry)
	boundary := escalation.NewChannelBoundary(16, nil)
	script := &reasoner.Scripted{}

	recaller := memory.NewRecaller(log)
	cur := curator.New(goals, recaller, registry, curator.WithKnowledge(kb))
	executor := react.NewExecutor(script, gw, cur)
	explorer := tot.NewEngine(script, script, gw, tot.Config{Width: 2, Depth: 3, ScoreThreshold: 5})
	reflector := reflexion.NewReflector(log, recaller, registry, nil)

	tier1 := protocol.NewTier1(plans, script, log, boundary, protocol.DefaultMaxRetries, nil)
	tier2 := protocol.NewTier2(plans, script, script, kb, registry, log, boundary, nil)
	engine := protocol.NewEngine(tier1, tier2, nil)

	orch := New(Deps{
		Plans:      plans,
		Goals:      goals,
		Decomposer: plan.NewDecomposer(script, nil),
		Executor:   executor,
		Explorer:   explorer,
		Gateway:    gw,
		Reflector:  reflector,
		Protocol:   engine,
		Boundary:   boundary,
	}, Config{MaxSteps: 4, Workers: 1})

	return &world{
		orch:     orch,
		plans:    plans,
		gw:       gw,
		registry: registry,
		log:      log,
		kb:       kb,
		boundary: boundary,
		script:   script,
	}
}

func TestMissionHappyPath(t *testing.T) {
	w := newWorld(t)
	w.gw.Register(gateway.NewFuncTool("shell", func(ctx context.Context, args map[string]any) (string, error) {
		return "exit code 0", nil
	}), capability.ManifestEntry{ToolName: "shell", Description: "runs commands", Confidence: 0.9})

	w.script.Specs = [][]reasoner.TaskSpec{{
		{ID: "t1", Description: "run the build"},
		{ID: "t2", Description: "run the tests", DependsOn: []string{"t1"}},
	}}
	w.script.Thoughts = []reasoner.Thought{
		{Text: "build it", Tool: "shell", Args: map[string]any{"cmd": "make"}},
		{Text: "build done", Conclude: true},
		{Text: "test it", Tool: "shell", Args: map[string]any{"cmd": "make test"}},
		{Text: "tests done", Conclude: true},
	}

	report, err := w.orch.RunMission(context.Background(), "build and test", []string{"build", "test"})
	if err != nil {
		t.Fatalf("RunMission: %v", err)
	}
	if report.Status != core.MissionStatusSucceeded {
		t.Fatalf("report = %+v", report)
	}
	if report.Succeeded != 2 || report.Blocked != 0 {
		t.Fatalf("report = %+v", report)
	}

	// every step left a reflexion record
	count, _ := w.log.Count(context.Background())
	if count == 0 {
		t.Fatal("steps must append reflexion records")
	}
}

func TestTierOneRecoversThroughCorrective(t *testing.T) {
	w := newWorld(t)

	deployCalls := 0
	w.gw.Register(gateway.NewFuncTool("deploy", func(ctx context.Context, args map[string]any) (string, error) {
		deployCalls++
		if deployCalls == 1 {
			return "", errors.New(errors.CodeToolFailure, "sh: helm: command not found", nil).WithRecoverable(true)
		}
		return "deploy completed, exit code 0", nil
	}), capability.ManifestEntry{ToolName: "deploy", Description: "deploys", Confidence: 0.9})

	w.gw.Register(gateway.NewFuncTool("install", func(ctx context.Context, args map[string]any) (string, error) {
		return "helm installed successfully", nil
	}), capability.ManifestEntry{ToolName: "install", Description: "installs packages", Confidence: 0.9})

	w.script.Specs = [][]reasoner.TaskSpec{{
		{ID: "t1", Description: "deploy the chart"},
	}}
	w.script.Thoughts = []reasoner.Thought{
		{Text: "deploy now", Tool: "deploy"},
		// second attempt, after the corrective
		{Text: "deploy again", Tool: "deploy"},
		{Text: "deployed", Conclude: true},
	}
	w.script.Hypotheses = []reasoner.Hypothesis{
		{Cause: "helm binary missing", CorrectiveDescription: "install helm", Tool: "install"},
	}

	report, err := w.orch.RunMission(context.Background(), "ship the chart", nil)
	if err != nil {
		t.Fatalf("RunMission: %v", err)
	}
	if report.Status != core.MissionStatusSucceeded {
		t.Fatalf("report = %+v", report)
	}

	ctx := context.Background()
	task, _ := w.plans.Task(ctx, "t1")
	if task.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", task.RetryCount)
	}
	fix, err := w.plans.Task(ctx, "t1-fix-1")
	if err != nil {
		t.Fatalf("corrective task missing: %v", err)
	}
	if fix.Status != core.TaskStatusSucceeded {
		t.Fatalf("corrective = %+v", fix)
	}

	records, _ := w.log.ByTask(ctx, "t1")
	foundCorrective := false
	for _, record := range records {
		if record.Category == core.CategoryCorrective {
			foundCorrective = true
		}
	}
	if !foundCorrective {
		t.Fatal("Tier 1 must leave a corrective record")
	}
}

func TestAmbiguousFailureExploresAndCommits(t *testing.T) {
	w := newWorld(t)

	w.gw.Register(gateway.NewFuncTool("probe", func(ctx context.Context, args map[string]any) (string, error) {
		return "output shifted in a way nothing explains", nil
	}), capability.ManifestEntry{ToolName: "probe", Description: "probes", Confidence: 0.9})
	w.gw.Register(gateway.NewFuncTool("inspect", func(ctx context.Context, args map[string]any) (string, error) {
		return "inspection reveals a stale cache", nil
	}), capability.ManifestEntry{ToolName: "inspect", Description: "inspects state", Confidence: 0.9})

	w.script.Specs = [][]reasoner.TaskSpec{{
		{ID: "t1", Description: "figure out the regression"},
	}}
	w.script.Thoughts = []reasoner.Thought{
		{Text: "probe the system", Tool: "probe"},
	}
	w.script.Storms = [][]reasoner.Thought{
		{
			{Text: "inspect the cache layer", Tool: "inspect"},
			{Text: "restart everything"},
		},
		{
			{Text: "stale cache is the cause, clear it on deploy", Conclude: true},
		},
	}
	w.script.Scores = []float64{8, 8, 9}

	report, err := w.orch.RunMission(context.Background(), "diagnose the regression", nil)
	if err != nil {
		t.Fatalf("RunMission: %v", err)
	}
	if report.Status != core.MissionStatusSucceeded {
		t.Fatalf("report = %+v", report)
	}

	task, _ := w.plans.Task(context.Background(), "t1")
	if !strings.Contains(task.Result, "stale cache") {
		t.Fatalf("task result should carry the committed conclusion: %q", task.Result)
	}
}

func TestSearchExhaustionBlocksAndEscalates(t *testing.T) {
	w := newWorld(t)

	task := core.NewTask("", "choose the storage engine")
	w.script.Specs = [][]reasoner.TaskSpec{{
		{ID: "t1", Description: task.Description, Tags: []string{core.TagTechnologyChoice}},
	}}
	// every level only ponders, never concludes: the budget runs out
	w.script.Storms = [][]reasoner.Thought{
		{{Text: "weigh option a"}, {Text: "weigh option b"}},
		{{Text: "weigh harder"}, {Text: "weigh differently"}},
		{{Text: "keep weighing"}, {Text: "still weighing"}},
	}
	w.script.Scores = []float64{6, 6, 6, 6, 6, 6}

	report, err := w.orch.RunMission(context.Background(), "pick storage", nil)
	if err != nil {
		t.Fatalf("RunMission: %v", err)
	}
	if report.Status != core.MissionStatusFailed || report.Blocked != 1 {
		t.Fatalf("report = %+v", report)
	}

	select {
	case esc := <-w.boundary.Escalations():
		if esc.Reason != escalation.ReasonSearchExhausted {
			t.Fatalf("reason = %s", esc.Reason)
		}
	default:
		t.Fatal("search exhaustion must cross the human boundary")
	}
}

func TestCapabilityGapResolvedThroughResearch(t *testing.T) {
	w := newWorld(t)

	// pdf_extract is bound but deliberately not registered: invisible until
	// research learns it exists
	w.gw.Bind(gateway.NewFuncTool("pdf_extract", func(ctx context.Context, args map[string]any) (string, error) {
		return "extraction completed", nil
	}))

	w.script.Specs = [][]reasoner.TaskSpec{{
		{ID: "t1", Description: "extract text from the contract pdf"},
	}}
	w.script.Thoughts = []reasoner.Thought{
		{Text: "try the extractor", Tool: "pdf_extract"},
		// after research registers the tool, the retry succeeds
		{Text: "extract again", Tool: "pdf_extract"},
		{Text: "text extracted", Conclude: true},
	}
	w.script.Findings = [][]reasoner.Finding{{
		{Source: "registry-docs", Content: "pdf_extract is available in the toolbox"},
	}}
	w.script.Heuristics = []string{"pdf_extract takes a path argument and returns plain text."}

	report, err := w.orch.RunMission(context.Background(), "digitize the contract", nil)
	if err != nil {
		t.Fatalf("RunMission: %v", err)
	}
	if report.Status != core.MissionStatusSucceeded {
		t.Fatalf("report = %+v", report)
	}

	ctx := context.Background()
	task, _ := w.plans.Task(ctx, "t1")
	if task.RetryCount != 0 {
		t.Fatalf("Tier 2 must not consume retry budget, count = %d", task.RetryCount)
	}
	if _, err := w.kb.Read(ctx, "capability-pdf_extract"); err != nil {
		t.Fatalf("knowledge document missing: %v", err)
	}
	if _, ok := w.registry.Get("pdf_extract"); !ok {
		t.Fatal("researched capability must be registered")
	}
}

func TestCancelledContextStopsTheMission(t *testing.T) {
	w := newWorld(t)
	w.script.Specs = [][]reasoner.TaskSpec{{
		{ID: "t1", Description: "anything"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.orch.RunMission(ctx, "never runs", nil)
	if err == nil {
		t.Fatal("cancelled context must surface an error")
	}
}
