// SPDX-License-Identifier: Apache-2.0
// Package protocol implements the two-tier autonomous reasoning protocol:
// Tier 1 turns classified transient failures into injected corrective tasks
// under a bounded retry budget; Tier 2 turns capability gaps into research,
// a versioned knowledge-base update and a capability registration. Ambiguous
// failures belong to neither tier and are left to the exploration path.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/escalation"
	"github.com/telos-ai/telos/pkg/memory"
	"github.com/telos-ai/telos/pkg/plan"
	"github.com/telos-ai/telos/pkg/reasoner"
	"github.com/telos-ai/telos/pkg/reflexion"
)

// DefaultMaxRetries is the Tier-1 retry budget per task.
const DefaultMaxRetries = 3

// Tier1 handles classified transient failures: hypothesis, corrective task
// injection, retry accounting and the circuit breaker.
type Tier1 struct {
	plans        *plan.Manager
	hypothesizer reasoner.Hypothesizer
	store        memory.Store
	boundary     escalation.Boundary
	maxRetries   int
	logger       *slog.Logger
}

// NewTier1 creates the Tier-1 handler. maxRetries <= 0 selects the default.
func NewTier1(plans *plan.Manager, hypothesizer reasoner.Hypothesizer, store memory.Store, boundary escalation.Boundary, maxRetries int, logger *slog.Logger) *Tier1 {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tier1{
		plans:        plans,
		hypothesizer: hypothesizer,
		store:        store,
		boundary:     boundary,
		maxRetries:   maxRetries,
		logger:       logger,
	}
}

// Handle processes one classified transient failure. While budget remains it
// injects a corrective prerequisite and requeues the task with RetryCount
// incremented; once the budget is spent the circuit breaker trips: the task
// blocks terminally and the human boundary is notified.
func (t *Tier1) Handle(ctx context.Context, taskID string, attempt reflexion.Attempt, eval reflexion.EvaluationResult) (Outcome, error) {
	task, err := t.plans.Task(ctx, taskID)
	if err != nil {
		return OutcomeNone, err
	}

	if task.RetryCount >= t.maxRetries {
		return t.trip(ctx, task, eval)
	}

	hyp, err := t.hypothesizer.Hypothesize(ctx, task.Description, string(eval.Class), attempt.Observation)
	if err != nil {
		return OutcomeNone, errors.New(errors.CodeLLMError, "failure hypothesis failed", err).
			WithAttribute("task_id", taskID)
	}

	attemptNo := task.RetryCount + 1
	corrective := core.NewTask(task.MissionID, hyp.CorrectiveDescription)
	corrective.ID = fmt.Sprintf("%s-fix-%d", task.ID, attemptNo)
	corrective.EscalationTier = 1
	if hyp.Tool != "" {
		corrective.Metadata["tool"] = hyp.Tool
		if len(hyp.Args) > 0 {
			if encoded, err := json.Marshal(hyp.Args); err == nil {
				corrective.Metadata["args"] = string(encoded)
			}
		}
	}

	if err := t.plans.InjectBefore(ctx, task.ID, corrective); err != nil {
		return OutcomeNone, err
	}
	if _, err := t.plans.Update(ctx, task.ID, func(task *core.Task) {
		task.RetryCount++
		task.EscalationTier = 1
		task.Status = core.TaskStatusPending
		task.FinishedAt = time.Time{}
	}); err != nil {
		return OutcomeNone, err
	}

	record := core.NewReflexionRecord(task.MissionID, task.ID)
	record.Action = "injected corrective task " + corrective.ID
	record.Observation = attempt.Observation
	record.Category = core.CategoryCorrective
	record.Reflection = "hypothesis: " + hyp.Cause
	if err := t.store.Append(ctx, record); err != nil {
		return OutcomeNone, errors.New(errors.CodeMemoryError, "corrective record append failed", err)
	}

	t.logger.Info("protocol.tier1.triggered",
		"task_id", task.ID,
		"class", string(eval.Class),
		"attempt", attemptNo,
		"corrective_id", corrective.ID)
	return OutcomeRetried, nil
}

// trip fires the circuit breaker: terminal block plus human escalation.
func (t *Tier1) trip(ctx context.Context, task *core.Task, eval reflexion.EvaluationResult) (Outcome, error) {
	reason := fmt.Sprintf("circuit breaker tripped after %d corrective attempts", t.maxRetries)
	if _, err := t.plans.Update(ctx, task.ID, func(task *core.Task) {
		task.Status = core.TaskStatusBlocked
		task.Error = reason
		task.FinishedAt = time.Now().UTC()
	}); err != nil {
		return OutcomeNone, err
	}

	history, _ := t.store.ByTask(ctx, task.ID)
	esc := escalation.Escalation{
		MissionID: task.MissionID,
		TaskID:    task.ID,
		Reason:    escalation.ReasonCircuitBreaker,
		Summary:   reason + ": " + eval.Reflection,
		History:   history,
		At:        time.Now().UTC(),
	}
	if err := t.boundary.Escalate(ctx, esc); err != nil {
		t.logger.Error("protocol.tier1.escalation_failed", "task_id", task.ID, "error", err)
	}

	t.logger.Warn("protocol.tier1.circuit_breaker",
		"task_id", task.ID,
		"retries", task.RetryCount)
	return OutcomeBlocked, nil
}
