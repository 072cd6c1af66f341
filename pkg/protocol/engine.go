// SPDX-License-Identifier: Apache-2.0
package protocol

import (
	"context"
	"log/slog"

	"github.com/telos-ai/telos/pkg/reflexion"
)

// Outcome is what the protocol engine did with a failed task.
type Outcome string

const (
	// OutcomeNone: the failure is not protocol business (success, or an
	// ambiguous failure left to the exploration path).
	OutcomeNone Outcome = "none"
	// OutcomeRetried: Tier 1 injected a corrective and requeued the task.
	OutcomeRetried Outcome = "retried"
	// OutcomeRequeued: Tier 2 resolved the gap and requeued the task.
	OutcomeRequeued Outcome = "requeued"
	// OutcomeBlocked: the task is terminally blocked awaiting a human.
	OutcomeBlocked Outcome = "blocked"
)

// Engine routes a classified failure to the tier that owns it. The routing
// rule is strict: capability gaps are exclusively Tier 2, classified
// transient failures exclusively Tier 1, everything else is not handled
// here.
type Engine struct {
	tier1  *Tier1
	tier2  *Tier2
	logger *slog.Logger
}

// NewEngine creates the protocol engine.
func NewEngine(tier1 *Tier1, tier2 *Tier2, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tier1: tier1, tier2: tier2, logger: logger}
}

// Handle dispatches one evaluated failure.
func (e *Engine) Handle(ctx context.Context, taskID string, attempt reflexion.Attempt, eval reflexion.EvaluationResult) (Outcome, error) {
	switch {
	case eval.Class == reflexion.ClassCapabilityGap:
		return e.tier2.Handle(ctx, taskID, attempt, eval)
	case eval.Class.Transient():
		return e.tier1.Handle(ctx, taskID, attempt, eval)
	default:
		e.logger.Debug("protocol.unhandled_class",
			"task_id", taskID,
			"class", string(eval.Class))
		return OutcomeNone, nil
	}
}
