// Package escalation holds the two escalation surfaces: the decision of
// when a task leaves the linear loop for Tree-of-Thoughts, and the boundary
// through which control is handed to a human.
package escalation

import (
	"context"
	"log/slog"
	"time"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/reflexion"
)

// Reason explains why control crossed the human boundary.
type Reason string

const (
	// ReasonCircuitBreaker: Tier 1 exhausted its retry budget.
	ReasonCircuitBreaker Reason = "circuit-breaker"
	// ReasonResearchExhausted: Tier 2 produced no usable heuristic.
	ReasonResearchExhausted Reason = "research-exhausted"
	// ReasonSearchExhausted: Tree-of-Thoughts explored its budget without a
	// viable path.
	ReasonSearchExhausted Reason = "search-exhausted"
	// ReasonKnowledgeConflict: a knowledge-base update lost every retry.
	ReasonKnowledgeConflict Reason = "knowledge-conflict"
	// ReasonInvalidPlan: decomposition produced an unexecutable plan.
	ReasonInvalidPlan Reason = "invalid-plan"
)

// Escalation is the payload handed across the human boundary. History
// carries the task's full reflexion trail so the operator sees every
// attempt, not a paraphrase of it.
type Escalation struct {
	MissionID string                 `json:"mission_id"`
	TaskID    string                 `json:"task_id"`
	Reason    Reason                 `json:"reason"`
	Summary   string                 `json:"summary"`
	History   []core.ReflexionRecord `json:"history,omitempty"`
	At        time.Time              `json:"at"`
}

// Boundary receives escalations. Implementations must not block the
// orchestrator indefinitely.
type Boundary interface {
	Escalate(ctx context.Context, esc Escalation) error
}

// ShouldExplore decides whether a task belongs in Tree-of-Thoughts instead
// of the linear loop. High-complexity tags route there before any linear
// attempt; an ambiguous evaluation routes there after one.
func ShouldExplore(task *core.Task, lastClass reflexion.FailureClass) bool {
	if task.HighComplexity() {
		return true
	}
	return lastClass == reflexion.ClassAmbiguous
}

// LogBoundary writes escalations to the structured log. It is the default
// boundary for unattended runs.
type LogBoundary struct {
	logger *slog.Logger
}

// NewLogBoundary creates a log-backed boundary.
func NewLogBoundary(logger *slog.Logger) *LogBoundary {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBoundary{logger: logger}
}

// Escalate implements Boundary.
func (b *LogBoundary) Escalate(_ context.Context, esc Escalation) error {
	b.logger.Warn("escalation.human",
		"mission_id", esc.MissionID,
		"task_id", esc.TaskID,
		"reason", string(esc.Reason),
		"summary", esc.Summary,
		"history_records", len(esc.History))
	return nil
}

// ChannelBoundary delivers escalations to a channel an operator process
// drains. Delivery is non-blocking; an unread escalation falls back to the
// log rather than stalling the run.
type ChannelBoundary struct {
	ch     chan Escalation
	logger *slog.Logger
}

// NewChannelBoundary creates a channel-backed boundary with the given buffer.
func NewChannelBoundary(buffer int, logger *slog.Logger) *ChannelBoundary {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelBoundary{ch: make(chan Escalation, buffer), logger: logger}
}

// Escalations exposes the receive side for the operator.
func (b *ChannelBoundary) Escalations() <-chan Escalation {
	return b.ch
}

// Escalate implements Boundary.
func (b *ChannelBoundary) Escalate(ctx context.Context, esc Escalation) error {
	select {
	case b.ch <- esc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		b.logger.Warn("escalation.channel.full",
			"mission_id", esc.MissionID,
			"task_id", esc.TaskID,
			"reason", string(esc.Reason))
		return nil
	}
}

var (
	_ Boundary = (*LogBoundary)(nil)
	_ Boundary = (*ChannelBoundary)(nil)
)
