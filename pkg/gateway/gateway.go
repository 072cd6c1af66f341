// Package gateway is the single synchronous boundary between the agent and
// every external effectful operation. All tool dispatch goes through
// Invoke, which enforces the capability-registry precondition, applies a
// caller-supplied timeout and classifies failures into the four wire kinds.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/resilience"
)

// Kind is the tool error kind on the wire.
type Kind string

const (
	KindNotFound     Kind = "NotFound"
	KindUnauthorized Kind = "Unauthorized"
	KindTimeout      Kind = "Timeout"
	KindRuntime      Kind = "RuntimeError"
)

// Observation is the successful result of one tool invocation.
type Observation struct {
	Tool     string
	Output   string
	Duration time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDefaultTimeout sets the timeout used when the caller passes zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.defaultTimeout = d
		}
	}
}

// WithMinConfidence sets the confidence floor below which a tool must pass a
// verification probe before dispatch.
func WithMinConfidence(threshold float64) Option {
	return func(g *Gateway) { g.minConfidence = threshold }
}

// WithRetry sets the transport-level retry policy for recoverable kinds.
// Defaults to a single attempt; task-level retries belong to Tier 1.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(g *Gateway) { g.retry = rc }
}

// WithBreaker configures the per-tool circuit breaker template.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(g *Gateway) { g.breakerCfg = cfg }
}

// Gateway dispatches tool invocations for registered capabilities.
type Gateway struct {
	mu       sync.RWMutex
	registry *capability.Registry
	tools    map[string]core.Tool
	breakers map[string]*resilience.CircuitBreaker

	defaultTimeout time.Duration
	minConfidence  float64
	retry          resilience.RetryConfig
	breakerCfg     resilience.CircuitBreakerConfig
	tracer         trace.Tracer
}

// New creates a gateway bound to a capability registry. The gateway installs
// itself as the registry's prober so Verify exercises the real binding.
func New(registry *capability.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry:       registry,
		tools:          make(map[string]core.Tool),
		breakers:       make(map[string]*resilience.CircuitBreaker),
		defaultTimeout: 30 * time.Second,
		minConfidence:  0.3,
		retry:          resilience.RetryConfig{MaxAttempts: 1},
		breakerCfg: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		},
		tracer: otel.Tracer("telos/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	registry.SetProber(capability.ProberFunc(g.probe))
	return g
}

// Bind makes a tool implementation dispatchable without adding a manifest
// entry. A bound-but-unregistered tool stays invisible to the agent until
// Tier 2 learns it exists.
func (g *Gateway) Bind(tool core.Tool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tools[tool.Name()] = tool
}

// Register binds a tool and records its manifest entry in one step.
func (g *Gateway) Register(tool core.Tool, entry capability.ManifestEntry) {
	if entry.ToolName == "" {
		entry.ToolName = tool.Name()
	}
	g.Bind(tool)
	g.registry.Register(entry)
}

// Invoke dispatches one tool call. The registry lookup is a hard
// precondition: an unregistered name returns CodeCapabilityGap, never a
// dispatch. Timeout and RuntimeError kinds are safe to retry; NotFound and
// Unauthorized are not and bypass Tier 1.
func (g *Gateway) Invoke(ctx context.Context, toolName string, args map[string]any, timeout time.Duration) (Observation, error) {
	ctx, span := g.tracer.Start(ctx, "Gateway.Invoke",
		trace.WithAttributes(attribute.String("tool.name", toolName)),
	)
	defer span.End()

	entry, known := g.registry.Get(toolName)
	if !known {
		return Observation{}, errors.New(errors.CodeCapabilityGap,
			fmt.Sprintf("tool %q is not in the capability registry", toolName), nil).
			WithContext("tool", toolName)
	}

	if entry.Confidence < g.minConfidence {
		if !g.registry.Verify(ctx, toolName) {
			return Observation{}, errors.New(errors.CodeCapabilityGap,
				fmt.Sprintf("tool %q confidence %.2f below floor and probe failed", toolName, entry.Confidence), nil).
				WithContext("tool", toolName).
				WithContext("confidence", entry.Confidence)
		}
	}

	g.mu.RLock()
	impl, bound := g.tools[toolName]
	breaker, hasBreaker := g.breakers[toolName]
	g.mu.RUnlock()

	if !bound {
		return Observation{}, toolError(KindNotFound, toolName,
			fmt.Sprintf("tool %q has a manifest entry but no binding", toolName), nil)
	}

	if !hasBreaker {
		g.mu.Lock()
		breaker = g.breakers[toolName]
		if breaker == nil {
			cfg := g.breakerCfg
			cfg.Name = toolName
			breaker = resilience.NewCircuitBreaker(cfg)
			g.breakers[toolName] = breaker
		}
		g.mu.Unlock()
	}

	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	start := time.Now()
	var output string
	err := g.retry.Do(ctx, func() error {
		return breaker.Call(ctx, func() error {
			result, callErr := resilience.WithTimeoutResult(ctx,
				resilience.TimeoutConfig{Duration: timeout},
				func(ctx context.Context) (string, error) {
					return impl.Call(ctx, args)
				})
			if callErr != nil {
				return classify(toolName, callErr)
			}
			output = result
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return Observation{}, err
	}

	return Observation{
		Tool:     toolName,
		Output:   output,
		Duration: time.Since(start),
	}, nil
}

// probe backs capability.Registry.Verify: a cheap read-only check against
// the real binding.
func (g *Gateway) probe(ctx context.Context, toolName string) error {
	g.mu.RLock()
	impl, bound := g.tools[toolName]
	g.mu.RUnlock()
	if !bound {
		return fmt.Errorf("tool %q is not bound", toolName)
	}
	if prober, ok := impl.(core.Prober); ok {
		return prober.Probe(ctx)
	}
	return nil
}

// classify maps a raw tool error onto the wire kinds.
func classify(toolName string, err error) error {
	te := errors.AsTelosError(err)
	switch te.Code {
	case errors.CodeTimeout:
		return toolError(KindTimeout, toolName, "tool call timed out", err)
	case errors.CodeNotFound:
		return toolError(KindNotFound, toolName, te.Message, err)
	case errors.CodeUnauthorized:
		return toolError(KindUnauthorized, toolName, te.Message, err)
	case errors.CodeToolFailure:
		// already classified by the tool itself
		return err
	default:
		return toolError(KindRuntime, toolName, "tool call failed", err)
	}
}

// toolError builds the wire-shaped error for a kind.
func toolError(kind Kind, toolName, msg string, cause error) *errors.TelosError {
	code := errors.CodeToolFailure
	recoverable := true
	switch kind {
	case KindTimeout:
		code = errors.CodeTimeout
	case KindNotFound:
		code = errors.CodeNotFound
		recoverable = false
	case KindUnauthorized:
		code = errors.CodeUnauthorized
		recoverable = false
	}
	return errors.New(code, msg, cause).
		WithContext("tool", toolName).
		WithContext("kind", string(kind)).
		WithAttribute("tool.name", toolName).
		WithRecoverable(recoverable)
}

// ErrorKind extracts the wire kind from an invocation error.
func ErrorKind(err error) (Kind, bool) {
	te, ok := err.(*errors.TelosError)
	if !ok {
		return "", false
	}
	switch te.Code {
	case errors.CodeTimeout:
		return KindTimeout, true
	case errors.CodeNotFound:
		return KindNotFound, true
	case errors.CodeUnauthorized:
		return KindUnauthorized, true
	case errors.CodeToolFailure:
		return KindRuntime, true
	}
	return "", false
}

// Retryable reports whether an invocation error may be retried safely.
func Retryable(err error) bool {
	kind, ok := ErrorKind(err)
	if !ok {
		return false
	}
	return kind == KindTimeout || kind == KindRuntime
}
