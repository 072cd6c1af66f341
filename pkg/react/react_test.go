package react

import (
	"context"
	"strings"
	"testing"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/curator"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/gateway"
	"github.com/telos-ai/telos/pkg/goal"
	"github.com/telos-ai/telos/pkg/memory"
	"github.com/telos-ai/telos/pkg/reasoner"
)

func fixture(t *testing.T, script *reasoner.Scripted) (*Executor, *gateway.Gateway, *core.Task) {
	t.Helper()
	ctx := context.Background()

	goals := goal.NewManager(goal.NewMemStore())
	if _, err := goals.Init(ctx, "m1", "directive", nil); err != nil {
		t.Fatalf("goal init: %v", err)
	}
	registry := capability.NewRegistry()
	gw := gateway.New(registry)
	cur := curator.New(goals, memory.NewRecaller(memory.NewLog()), registry)

	task := core.NewTask("m1", "echo something")
	return NewExecutor(script, gw, cur), gw, task
}

func TestStepDispatchesExactlyOneAction(t *testing.T) {
	script := &reasoner.Scripted{
		Thoughts: []reasoner.Thought{
			{Text: "use echo", Tool: "echo", Args: map[string]any{"msg": "hi"}},
		},
	}
	executor, gw, task := fixture(t, script)

	calls := 0
	gw.Register(gateway.NewFuncTool("echo", func(ctx context.Context, args map[string]any) (string, error) {
		calls++
		return args["msg"].(string), nil
	}), capability.ManifestEntry{ToolName: "echo", Description: "echoes", Confidence: 0.9})

	result, err := executor.Step(context.Background(), task)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if calls != 1 {
		t.Fatalf("gateway invoked %d times, want 1", calls)
	}
	if result.Observation != "hi" || result.Terminal {
		t.Fatalf("result = %+v", result)
	}
}

func TestStepConcludesWithoutAction(t *testing.T) {
	script := &reasoner.Scripted{
		Thoughts: []reasoner.Thought{{Text: "done", Conclude: true}},
	}
	executor, _, task := fixture(t, script)

	result, err := executor.Step(context.Background(), task)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !result.Terminal {
		t.Fatal("concluding thought must be terminal")
	}
	if result.Tool != "" {
		t.Fatal("no action may run on a concluding step")
	}
}

func TestStepUnregisteredToolIsCapabilityGap(t *testing.T) {
	script := &reasoner.Scripted{
		Thoughts: []reasoner.Thought{{Text: "try ghost", Tool: "ghost_tool"}},
	}
	executor, _, task := fixture(t, script)

	result, err := executor.Step(context.Background(), task)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !errors.HasCode(result.Err, errors.CodeCapabilityGap) {
		t.Fatalf("want capability gap in observation, got %v", result.Err)
	}
	if !strings.Contains(result.Observation, "capability") {
		t.Fatalf("observation should carry the gap: %q", result.Observation)
	}
}

func TestStepToolFailureBecomesObservation(t *testing.T) {
	script := &reasoner.Scripted{
		Thoughts: []reasoner.Thought{{Text: "run flaky", Tool: "flaky"}},
	}
	executor, gw, task := fixture(t, script)

	gw.Register(gateway.NewFuncTool("flaky", func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New(errors.CodeToolFailure, "disk full", nil).WithRecoverable(true)
	}), capability.ManifestEntry{ToolName: "flaky", Description: "fails", Confidence: 0.9})

	result, err := executor.Step(context.Background(), task)
	if err != nil {
		t.Fatalf("Step itself must not fail on a tool error: %v", err)
	}
	if result.Err == nil {
		t.Fatal("tool failure should surface in the step result")
	}
	kind, ok := gateway.ErrorKind(result.Err)
	if !ok || kind != gateway.KindRuntime {
		t.Fatalf("kind = %v ok=%v", kind, ok)
	}
}
