// Package orchestrator drives missions end to end: decomposition, the
// per-task cognitive loop, reflexion after every step, protocol handling on
// classified failures, Tree-of-Thoughts on ambiguity and the human boundary
// when autonomy runs out.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/escalation"
	"github.com/telos-ai/telos/pkg/gateway"
	"github.com/telos-ai/telos/pkg/goal"
	"github.com/telos-ai/telos/pkg/plan"
	"github.com/telos-ai/telos/pkg/protocol"
	"github.com/telos-ai/telos/pkg/react"
	"github.com/telos-ai/telos/pkg/reflexion"
	"github.com/telos-ai/telos/pkg/telemetry"
	"github.com/telos-ai/telos/pkg/tot"
)

// Config bounds one orchestrator.
type Config struct {
	// MaxSteps is the ReAct step budget per task attempt.
	MaxSteps int
	// Workers is how many runnable tasks execute concurrently.
	Workers int
	// ActionTimeout is the per-action gateway timeout.
	ActionTimeout time.Duration
}

// DefaultConfig is used where the config file sets nothing.
func DefaultConfig() Config {
	return Config{MaxSteps: 8, Workers: 1, ActionTimeout: 30 * time.Second}
}

// Report summarizes a finished mission.
type Report struct {
	MissionID string
	Status    core.MissionStatus
	Succeeded int
	Blocked   int
	Tasks     int
}

// Orchestrator owns one mission at a time.
type Orchestrator struct {
	plans      *plan.Manager
	goals      *goal.Manager
	decomposer *plan.Decomposer
	executor   *react.Executor
	explorer   *tot.Engine
	gateway    *gateway.Gateway
	evaluator  reflexion.Evaluator
	reflector  *reflexion.Reflector
	protocol   *protocol.Engine
	boundary   escalation.Boundary
	emitter    core.EventEmitter
	metrics    *telemetry.MissionMetrics
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Plans      *plan.Manager
	Goals      *goal.Manager
	Decomposer *plan.Decomposer
	Executor   *react.Executor
	Explorer   *tot.Engine
	Gateway    *gateway.Gateway
	Evaluator  reflexion.Evaluator
	Reflector  *reflexion.Reflector
	Protocol   *protocol.Engine
	Boundary   escalation.Boundary
	Emitter    core.EventEmitter
	Metrics    *telemetry.MissionMetrics
	Logger     *slog.Logger
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Emitter == nil {
		deps.Emitter = core.NoopEventEmitter{}
	}
	if deps.Boundary == nil {
		deps.Boundary = escalation.NewLogBoundary(deps.Logger)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = reflexion.DefaultChain()
	}
	return &Orchestrator{
		plans:      deps.Plans,
		goals:      deps.Goals,
		decomposer: deps.Decomposer,
		executor:   deps.Executor,
		explorer:   deps.Explorer,
		gateway:    deps.Gateway,
		evaluator:  deps.Evaluator,
		reflector:  deps.Reflector,
		protocol:   deps.Protocol,
		boundary:   deps.Boundary,
		emitter:    deps.Emitter,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     deps.Logger,
		tracer:     otel.Tracer("telos/orchestrator"),
	}
}

// RunMission decomposes and executes a mission from its prime directive.
func (o *Orchestrator) RunMission(ctx context.Context, primeDirective string, checklist []string) (Report, error) {
	mission := core.NewMission(primeDirective)
	if _, err := o.goals.Init(ctx, mission.ID, primeDirective, checklist); err != nil {
		return Report{}, err
	}

	built, err := o.decomposer.Decompose(ctx, mission)
	if err != nil {
		if errors.HasCode(err, errors.CodeInvalidPlan) {
			o.escalate(ctx, mission.ID, "", escalation.ReasonInvalidPlan, err.Error(), nil)
		}
		return Report{MissionID: mission.ID, Status: core.MissionStatusFailed}, err
	}
	if err := o.plans.Create(ctx, built); err != nil {
		return Report{MissionID: mission.ID, Status: core.MissionStatusFailed}, err
	}
	return o.Execute(ctx, mission)
}

// RunPlanned executes a mission from a pre-parsed plan file.
func (o *Orchestrator) RunPlanned(ctx context.Context, parsed *plan.ParsedPlan) (Report, error) {
	mission := core.NewMission(parsed.PrimeDirective)
	if _, err := o.goals.Init(ctx, mission.ID, parsed.PrimeDirective, parsed.Checklist); err != nil {
		return Report{}, err
	}
	built := plan.FromSpecs(mission.ID, parsed.Specs)
	if err := o.plans.Create(ctx, built); err != nil {
		if errors.HasCode(err, errors.CodeInvalidPlan) {
			o.escalate(ctx, mission.ID, "", escalation.ReasonInvalidPlan, err.Error(), nil)
		}
		return Report{MissionID: mission.ID, Status: core.MissionStatusFailed}, err
	}
	return o.Execute(ctx, mission)
}

// Execute runs an already-planned mission to quiescence.
func (o *Orchestrator) Execute(ctx context.Context, mission *core.Mission) (Report, error) {
	ctx = core.WithMissionID(ctx, mission.ID)
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "Mission.Execute",
		trace.WithAttributes(attribute.String("mission.id", mission.ID)),
	)
	defer span.End()

	o.emitter.Emit(ctx, core.NewEvent(core.EventMissionStarted, mission.ID, "", map[string]any{
		"prime_directive": mission.PrimeDirective,
		"run_id":          runID,
	}))
	o.logger.Info("mission.started", "mission_id", mission.ID, "run_id", runID)

	for {
		if err := ctx.Err(); err != nil {
			return o.report(ctx, mission, core.MissionStatusCancelled), err
		}
		runnable, err := o.plans.Runnable(ctx, mission.ID)
		if err != nil {
			return o.report(ctx, mission, core.MissionStatusFailed), err
		}
		if len(runnable) == 0 {
			settled, err := o.plans.Settled(ctx, mission.ID)
			if err != nil {
				return o.report(ctx, mission, core.MissionStatusFailed), err
			}
			if settled {
				break
			}
			// failed tasks with no protocol outcome cannot progress
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Workers)
		for _, task := range runnable {
			task := task
			g.Go(func() error {
				return o.runTask(gctx, task)
			})
		}
		if err := g.Wait(); err != nil {
			return o.report(ctx, mission, core.MissionStatusFailed), err
		}
	}

	status := core.MissionStatusFailed
	if all, err := o.plans.AllSucceeded(ctx, mission.ID); err == nil && all {
		status = core.MissionStatusSucceeded
	}
	report := o.report(ctx, mission, status)

	o.emitter.Emit(ctx, core.NewEvent(core.EventMissionCompleted, mission.ID, "", map[string]any{
		"status":    string(status),
		"succeeded": report.Succeeded,
		"blocked":   report.Blocked,
	}))
	o.logger.Info("mission.completed",
		"mission_id", mission.ID,
		"status", string(status),
		"succeeded", report.Succeeded,
		"blocked", report.Blocked)
	return report, nil
}

// runTask executes one task to a settled state: succeeded, failed-and-handed
// to the protocol engine, or blocked.
func (o *Orchestrator) runTask(ctx context.Context, task *core.Task) error {
	ctx, span := o.tracer.Start(ctx, "Task.Run",
		trace.WithAttributes(attribute.String("task.id", task.ID)),
	)
	defer span.End()

	if _, err := o.plans.Start(ctx, task.ID); err != nil {
		return err
	}
	o.emitter.Emit(ctx, core.NewEvent(core.EventTaskStarted, task.MissionID, task.ID, nil))

	// high-complexity tasks skip the linear loop entirely
	if escalation.ShouldExplore(task, "") {
		return o.explore(ctx, task, "planning point: "+task.Description)
	}

	if tool := task.Metadata["tool"]; tool != "" {
		return o.runDirect(ctx, task, tool)
	}
	return o.runLinear(ctx, task)
}

// runLinear steps the ReAct loop until conclusion, failure, or step budget.
func (o *Orchestrator) runLinear(ctx context.Context, task *core.Task) error {
	for step := 1; step <= o.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := o.executor.Step(ctx, task)
		if err != nil {
			return err
		}

		if result.Terminal {
			return o.succeed(ctx, task, result.Thought.Text)
		}

		attempt := reflexion.Attempt{
			MissionID:   task.MissionID,
			TaskID:      task.ID,
			Tool:        result.Tool,
			Action:      result.Describe(),
			Observation: result.Observation,
			Err:         result.Err,
		}
		eval, _ := o.evaluator.Evaluate(ctx, attempt)
		if _, err := o.reflector.Reflect(ctx, attempt, eval); err != nil {
			return err
		}

		if eval.Class == reflexion.ClassSuccess {
			continue
		}
		return o.handleFailure(ctx, task, attempt, eval)
	}

	// budget spent without a conclusion is itself an ambiguous outcome
	attempt := reflexion.Attempt{
		MissionID:   task.MissionID,
		TaskID:      task.ID,
		Observation: fmt.Sprintf("no conclusion after %d steps", o.cfg.MaxSteps),
	}
	eval := reflexion.EvaluationResult{
		Score:      3,
		Class:      reflexion.ClassAmbiguous,
		Reflection: "step budget exhausted without conclusion",
	}
	return o.handleFailure(ctx, task, attempt, eval)
}

// runDirect executes a corrective task that carries an explicit action from
// its Tier-1 hypothesis, bypassing the thinker.
func (o *Orchestrator) runDirect(ctx context.Context, task *core.Task, tool string) error {
	var args map[string]any
	if raw := task.Metadata["args"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			args = nil
		}
	}

	obs, invokeErr := o.gateway.Invoke(ctx, tool, args, o.cfg.ActionTimeout)
	attempt := reflexion.Attempt{
		MissionID: task.MissionID,
		TaskID:    task.ID,
		Tool:      tool,
		Action:    "corrective: " + task.Description,
	}
	if invokeErr != nil {
		attempt.Observation = invokeErr.Error()
		attempt.Err = invokeErr
	} else {
		attempt.Observation = obs.Output
	}

	eval, _ := o.evaluator.Evaluate(ctx, attempt)
	if _, err := o.reflector.Reflect(ctx, attempt, eval); err != nil {
		return err
	}
	if invokeErr == nil && eval.Class == reflexion.ClassSuccess {
		return o.succeed(ctx, task, attempt.Observation)
	}
	return o.handleFailure(ctx, task, attempt, eval)
}

// handleFailure routes a classified failure to the protocol engine, or to
// exploration when the class is ambiguous.
func (o *Orchestrator) handleFailure(ctx context.Context, task *core.Task, attempt reflexion.Attempt, eval reflexion.EvaluationResult) error {
	if _, err := o.plans.Fail(ctx, task.ID, eval.Reflection); err != nil {
		return err
	}

	if eval.Class == reflexion.ClassAmbiguous {
		failureContext := fmt.Sprintf("task: %s\nlast action: %s\nobservation: %s\nassessment: %s",
			task.Description, attempt.Action, attempt.Observation, eval.Reflection)
		return o.explore(ctx, task, failureContext)
	}

	outcome, err := o.protocol.Handle(ctx, task.ID, attempt, eval)
	switch outcome {
	case protocol.OutcomeRetried:
		o.metrics.RecordTierOneRetry(ctx, task.MissionID, string(eval.Class))
		o.emitter.Emit(ctx, core.NewEvent(core.EventTierOneTriggered, task.MissionID, task.ID, map[string]any{
			"class": string(eval.Class),
		}))
		return nil
	case protocol.OutcomeRequeued:
		o.metrics.RecordResearch(ctx, task.MissionID, "resolved")
		o.emitter.Emit(ctx, core.NewEvent(core.EventTierTwoTriggered, task.MissionID, task.ID, map[string]any{
			"resolved": true,
		}))
		return nil
	case protocol.OutcomeBlocked:
		o.metrics.RecordTask(ctx, task.MissionID, string(core.TaskStatusBlocked))
		if errors.HasCode(err, errors.CodeResearchExhausted) {
			o.metrics.RecordResearch(ctx, task.MissionID, "exhausted")
		}
		o.metrics.RecordEscalation(ctx, task.MissionID, "protocol")
		o.emitter.Emit(ctx, core.NewEvent(core.EventTaskBlocked, task.MissionID, task.ID, map[string]any{
			"class": string(eval.Class),
		}))
		// the mission continues around the blocked task
		return nil
	default:
		return err
	}
}

// explore hands a task to Tree-of-Thoughts and settles it on the outcome.
func (o *Orchestrator) explore(ctx context.Context, task *core.Task, failureContext string) error {
	o.emitter.Emit(ctx, core.NewEvent(core.EventToTStarted, task.MissionID, task.ID, nil))

	result, err := o.explorer.Explore(ctx, task, failureContext)
	o.metrics.RecordToTNodes(ctx, task.MissionID, result.NodesExplored)
	if err != nil {
		return err
	}
	if result.Succeeded {
		return o.succeed(ctx, task, result.Conclusion)
	}

	reason := fmt.Sprintf("search exhausted after %d nodes at depth %d", result.NodesExplored, result.DepthReached)
	if _, err := o.plans.Block(ctx, task.ID, reason); err != nil {
		return err
	}
	o.metrics.RecordTask(ctx, task.MissionID, string(core.TaskStatusBlocked))
	summary := reason
	if path := pathSummary(result); len(path) > 0 {
		summary += "; best path: " + strings.Join(path, " | ")
	}
	o.escalate(ctx, task.MissionID, task.ID, escalation.ReasonSearchExhausted, summary, o.reflector.History(ctx, task.ID))
	o.emitter.Emit(ctx, core.NewEvent(core.EventTaskBlocked, task.MissionID, task.ID, map[string]any{
		"reason": reason,
	}))
	return nil
}

func (o *Orchestrator) succeed(ctx context.Context, task *core.Task, result string) error {
	if _, err := o.plans.Succeed(ctx, task.ID, result); err != nil {
		return err
	}
	o.metrics.RecordTask(ctx, task.MissionID, string(core.TaskStatusSucceeded))
	o.emitter.Emit(ctx, core.NewEvent(core.EventTaskSucceeded, task.MissionID, task.ID, nil))

	// check off the goal item this task carries, if any
	if item := task.Metadata["checklist_item"]; item != "" {
		if err := o.goals.MarkDone(ctx, task.MissionID, item); err != nil {
			o.logger.Warn("goal.mark_done.failed", "task_id", task.ID, "error", err)
		}
	}
	o.logger.Info("task.succeeded", "task_id", task.ID, "mission_id", task.MissionID)
	return nil
}

func (o *Orchestrator) escalate(ctx context.Context, missionID, taskID string, reason escalation.Reason, summary string, history []core.ReflexionRecord) {
	o.metrics.RecordEscalation(ctx, missionID, string(reason))
	esc := escalation.Escalation{
		MissionID: missionID,
		TaskID:    taskID,
		Reason:    reason,
		Summary:   summary,
		History:   history,
		At:        time.Now().UTC(),
	}
	if err := o.boundary.Escalate(ctx, esc); err != nil {
		o.logger.Error("escalation.failed", "mission_id", missionID, "task_id", taskID, "error", err)
	}
	o.emitter.Emit(ctx, core.NewEvent(core.EventHumanEscalation, missionID, taskID, map[string]any{
		"reason": string(reason),
	}))
}

func (o *Orchestrator) report(ctx context.Context, mission *core.Mission, status core.MissionStatus) Report {
	mission.Status = status
	report := Report{MissionID: mission.ID, Status: status}
	tasks, err := o.plans.Tasks(ctx, mission.ID)
	if err != nil {
		return report
	}
	report.Tasks = len(tasks)
	for _, task := range tasks {
		switch task.Status {
		case core.TaskStatusSucceeded:
			report.Succeeded++
		case core.TaskStatusBlocked:
			report.Blocked++
		}
	}
	return report
}

func pathSummary(result tot.Result) []string {
	var lines []string
	for _, node := range result.Path {
		line := fmt.Sprintf("score %.1f: %s", node.Score, node.Thought.Text)
		if node.Err != nil {
			line += " (failed: " + node.Err.Error() + ")"
		}
		lines = append(lines, line)
	}
	return lines
}
