// Package react runs the linear cognitive loop: one Thought, at most one
// Action through the tool gateway, one Observation per step. The loop is
// deliberately single-stepped so the orchestrator can interleave reflexion,
// cancellation and protocol handling between steps.
package react

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/curator"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/gateway"
	"github.com/telos-ai/telos/pkg/reasoner"
)

// StepResult is the full trace of one loop iteration.
type StepResult struct {
	Thought     reasoner.Thought
	Tool        string
	Args        map[string]any
	Observation string
	Err         error
	Duration    time.Duration
	// Terminal means the collaborator concluded the task; no action ran.
	Terminal bool
}

// Executor steps a task through think-act-observe iterations.
type Executor struct {
	thinker  reasoner.Thinker
	gateway  *gateway.Gateway
	curator  *curator.Curator
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithActionTimeout sets the per-action gateway timeout.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates a ReAct executor.
func NewExecutor(thinker reasoner.Thinker, gw *gateway.Gateway, cur *curator.Curator, opts ...Option) *Executor {
	e := &Executor{
		thinker: thinker,
		gateway: gw,
		curator: cur,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
		tracer:  otel.Tracer("telos/react"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step runs exactly one iteration: curate context, think once, and if the
// thought selects an action, dispatch it through the gateway. A concluding
// thought returns Terminal without touching the gateway.
func (e *Executor) Step(ctx context.Context, task *core.Task) (StepResult, error) {
	ctx, span := e.tracer.Start(ctx, "ReAct.Step",
		trace.WithAttributes(attribute.String("task.id", task.ID)),
	)
	defer span.End()

	start := time.Now()

	curated, err := e.curator.BuildContext(ctx, task)
	if err != nil {
		return StepResult{}, err
	}

	thought, err := e.thinker.Think(ctx, reasoner.ThinkRequest{
		TaskID:          task.ID,
		TaskDescription: task.Description,
		Context:         curated,
	})
	if err != nil {
		return StepResult{}, errors.New(errors.CodeLLMError, "thought generation failed", err).
			WithAttribute("task_id", task.ID)
	}

	result := StepResult{Thought: thought}

	if thought.Conclude {
		result.Terminal = true
		result.Duration = time.Since(start)
		e.logger.Debug("react.step.concluded", "task_id", task.ID)
		return result, nil
	}

	if thought.Tool == "" {
		// a thought with neither action nor conclusion is a reasoning-only
		// step; record it and move on
		result.Observation = "no action taken"
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Tool = thought.Tool
	result.Args = thought.Args

	obs, invokeErr := e.gateway.Invoke(ctx, thought.Tool, thought.Args, e.timeout)
	result.Duration = time.Since(start)
	if invokeErr != nil {
		span.RecordError(invokeErr)
		result.Err = invokeErr
		result.Observation = invokeErr.Error()
		e.logger.Debug("react.step.action_failed",
			"task_id", task.ID,
			"tool", thought.Tool,
			"error", invokeErr)
		return result, nil
	}

	result.Observation = obs.Output
	e.logger.Debug("react.step.observed",
		"task_id", task.ID,
		"tool", thought.Tool,
		"duration", obs.Duration)
	return result, nil
}

// Describe renders a step for episodic memory's action field.
func (r StepResult) Describe() string {
	if r.Terminal {
		return "concluded: " + r.Thought.Text
	}
	if r.Tool == "" {
		return "reasoned: " + r.Thought.Text
	}
	return fmt.Sprintf("invoked %s: %s", r.Tool, r.Thought.Text)
}
