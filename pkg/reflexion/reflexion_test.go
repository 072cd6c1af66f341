package reflexion

import (
	"context"
	"testing"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/memory"
)

func TestErrorEvaluatorMapsTypedCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"gap", errors.New(errors.CodeCapabilityGap, "no such tool", nil), ClassCapabilityGap},
		{"timeout", errors.New(errors.CodeTimeout, "too slow", nil), ClassTimeout},
		{"permission", errors.New(errors.CodeUnauthorized, "denied", nil), ClassPermission},
		{"missing", errors.New(errors.CodeNotFound, "absent", nil), ClassMissingDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, ok := ErrorEvaluator{}.Evaluate(context.Background(), Attempt{Err: tc.err})
			if !ok {
				t.Fatal("evaluator should handle typed errors")
			}
			if result.Class != tc.want {
				t.Fatalf("class = %s, want %s", result.Class, tc.want)
			}
		})
	}
}

func TestExitCodeEvaluator(t *testing.T) {
	result, ok := ExitCodeEvaluator{}.Evaluate(context.Background(), Attempt{
		Observation: "process finished with exit code 0",
	})
	if !ok || result.Class != ClassSuccess || result.Score != 10 {
		t.Fatalf("got %+v ok=%v", result, ok)
	}

	result, ok = ExitCodeEvaluator{}.Evaluate(context.Background(), Attempt{
		Observation: "sh: pip: command not found\nexit code 127",
	})
	if !ok || result.Class != ClassMissingDependency {
		t.Fatalf("got %+v ok=%v", result, ok)
	}
}

func TestTestSummaryEvaluator(t *testing.T) {
	result, ok := TestSummaryEvaluator{}.Evaluate(context.Background(), Attempt{
		Observation: "ran suite: 12 passed, 0 failed",
	})
	if !ok || result.Class != ClassSuccess {
		t.Fatalf("got %+v ok=%v", result, ok)
	}

	result, ok = TestSummaryEvaluator{}.Evaluate(context.Background(), Attempt{
		Observation: "ran suite: 9 passed, 3 failed",
	})
	if !ok || result.Class != ClassSyntax {
		t.Fatalf("got %+v ok=%v", result, ok)
	}
	if result.Score <= 0 || result.Score >= 10 {
		t.Fatalf("partial failure score = %v, want strictly between 0 and 10", result.Score)
	}
}

func TestChainFallsBackToAmbiguous(t *testing.T) {
	result, ok := DefaultChain().Evaluate(context.Background(), Attempt{
		Observation: "output shifted in an unexpected way",
	})
	if !ok {
		t.Fatal("chain always produces a verdict")
	}
	if result.Class != ClassAmbiguous {
		t.Fatalf("class = %s, want ambiguous", result.Class)
	}
}

func TestTransientClassification(t *testing.T) {
	for _, class := range []FailureClass{ClassMissingDependency, ClassPermission, ClassSyntax, ClassTimeout} {
		if !class.Transient() {
			t.Fatalf("%s should be transient", class)
		}
	}
	for _, class := range []FailureClass{ClassSuccess, ClassAmbiguous, ClassCapabilityGap} {
		if class.Transient() {
			t.Fatalf("%s should not be transient", class)
		}
	}
}

func TestReflectAppendsExactlyOneRecord(t *testing.T) {
	ctx := context.Background()
	log := memory.NewLog()
	registry := capability.NewRegistry()
	registry.Register(capability.ManifestEntry{ToolName: "shell", Confidence: 0.5})

	reflector := NewReflector(log, nil, registry, nil)
	attempt := Attempt{
		MissionID:   "m1",
		TaskID:      "t1",
		Tool:        "shell",
		Action:      "ran build",
		Observation: "exit code 0",
	}
	eval := EvaluationResult{Score: 10, Class: ClassSuccess, Reflection: "clean build"}

	record, err := reflector.Reflect(ctx, attempt, eval)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	count, _ := log.Count(ctx)
	if count != 1 {
		t.Fatalf("records = %d, want exactly 1", count)
	}
	if record.Category != core.CategorySuccess {
		t.Fatalf("category = %s", record.Category)
	}

	entry, _ := registry.Get("shell")
	if entry.Confidence <= 0.5 {
		t.Fatalf("success should raise confidence, got %v", entry.Confidence)
	}
}

func TestReflectLowersConfidenceOnFailure(t *testing.T) {
	ctx := context.Background()
	registry := capability.NewRegistry()
	registry.Register(capability.ManifestEntry{ToolName: "shell", Confidence: 0.5})
	reflector := NewReflector(memory.NewLog(), nil, registry, nil)

	_, err := reflector.Reflect(ctx,
		Attempt{MissionID: "m1", TaskID: "t1", Tool: "shell", Observation: "permission denied"},
		EvaluationResult{Score: 1, Class: ClassPermission, Reflection: "no access"})
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	entry, _ := registry.Get("shell")
	if entry.Confidence >= 0.5 {
		t.Fatalf("failure should lower confidence, got %v", entry.Confidence)
	}
}
