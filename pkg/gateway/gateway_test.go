package gateway

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/errors"
)

func newTestGateway(opts ...Option) (*Gateway, *capability.Registry) {
	registry := capability.NewRegistry()
	return New(registry, opts...), registry
}

func TestInvokeRequiresRegistryEntry(t *testing.T) {
	g, _ := newTestGateway()
	g.Bind(NewFuncTool("shadow", func(_ context.Context, _ map[string]any) (string, error) {
		return "should never run", nil
	}))

	_, err := g.Invoke(context.Background(), "shadow", nil, time.Second)
	if errors.CodeOf(err) != errors.CodeCapabilityGap {
		t.Fatalf("bound but unregistered tool must be a capability gap, got %v", err)
	}
}

func TestInvokeUnknownToolIsCapabilityGap(t *testing.T) {
	g, _ := newTestGateway()
	_, err := g.Invoke(context.Background(), "hallucinated_tool", nil, time.Second)
	if errors.CodeOf(err) != errors.CodeCapabilityGap {
		t.Fatalf("expected capability gap, got %v", err)
	}
}

func TestInvokeSuccess(t *testing.T) {
	g, _ := newTestGateway()
	g.Register(NewFuncTool("echo", func(_ context.Context, args map[string]any) (string, error) {
		return args["msg"].(string), nil
	}), capability.ManifestEntry{ToolName: "echo", Description: "echo input", Confidence: 0.9})

	obs, err := g.Invoke(context.Background(), "echo", map[string]any{"msg": "hi"}, time.Second)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if obs.Output != "hi" || obs.Tool != "echo" {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}

func TestInvokeTimeoutKind(t *testing.T) {
	g, _ := newTestGateway()
	g.Register(NewFuncTool("slow", func(ctx context.Context, _ map[string]any) (string, error) {
		time.Sleep(100 * time.Millisecond)
		return "late", nil
	}), capability.ManifestEntry{ToolName: "slow", Confidence: 0.9})

	_, err := g.Invoke(context.Background(), "slow", nil, 5*time.Millisecond)
	kind, ok := ErrorKind(err)
	if !ok || kind != KindTimeout {
		t.Fatalf("expected timeout kind, got %v (%v)", kind, err)
	}
	if !Retryable(err) {
		t.Fatalf("timeouts are retry-safe")
	}
}

func TestInvokeRuntimeKind(t *testing.T) {
	g, _ := newTestGateway()
	g.Register(NewFuncTool("flaky", func(_ context.Context, _ map[string]any) (string, error) {
		return "", stderrors.New("segfault")
	}), capability.ManifestEntry{ToolName: "flaky", Confidence: 0.9})

	_, err := g.Invoke(context.Background(), "flaky", nil, time.Second)
	kind, _ := ErrorKind(err)
	if kind != KindRuntime {
		t.Fatalf("expected runtime kind, got %v", kind)
	}
}

func TestInvokeUnauthorizedNotRetryable(t *testing.T) {
	g, _ := newTestGateway()
	g.Register(NewFuncTool("vault", func(_ context.Context, _ map[string]any) (string, error) {
		return "", errors.New(errors.CodeUnauthorized, "token expired", nil)
	}), capability.ManifestEntry{ToolName: "vault", Confidence: 0.9})

	_, err := g.Invoke(context.Background(), "vault", nil, time.Second)
	kind, _ := ErrorKind(err)
	if kind != KindUnauthorized {
		t.Fatalf("expected unauthorized kind, got %v", kind)
	}
	if Retryable(err) {
		t.Fatalf("unauthorized is never retried")
	}
}

func TestLowConfidenceRequiresPassingProbe(t *testing.T) {
	g, registry := newTestGateway(WithMinConfidence(0.5))

	probeErr := stderrors.New("binary missing")
	g.Register(NewFuncTool("shaky", func(_ context.Context, _ map[string]any) (string, error) {
		return "ran", nil
	}).WithProbe(func(ctx context.Context) error { return probeErr }),
		capability.ManifestEntry{ToolName: "shaky", Confidence: 0.1})

	_, err := g.Invoke(context.Background(), "shaky", nil, time.Second)
	if errors.CodeOf(err) != errors.CodeCapabilityGap {
		t.Fatalf("failed probe below floor must be a gap, got %v", err)
	}

	// Probe passes now; invocation goes through despite low confidence.
	g.Register(NewFuncTool("shaky", func(_ context.Context, _ map[string]any) (string, error) {
		return "ran", nil
	}), capability.ManifestEntry{ToolName: "shaky", Confidence: 0.1})

	obs, err := g.Invoke(context.Background(), "shaky", nil, time.Second)
	if err != nil {
		t.Fatalf("invoke after passing probe: %v", err)
	}
	if obs.Output != "ran" {
		t.Fatalf("unexpected output: %s", obs.Output)
	}

	entry, _ := registry.Get("shaky")
	if entry.VerifiedAt.IsZero() {
		t.Fatalf("verification should stamp the manifest entry")
	}
}
