// SPDX-License-Identifier: Apache-2.0
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/escalation"
	"github.com/telos-ai/telos/pkg/knowledge"
	"github.com/telos-ai/telos/pkg/memory"
	"github.com/telos-ai/telos/pkg/plan"
	"github.com/telos-ai/telos/pkg/reasoner"
	"github.com/telos-ai/telos/pkg/reflexion"
)

// learnedConfidence is the starting confidence for a capability registered
// through research rather than direct verification.
const learnedConfidence = 0.5

// Tier2 handles capability gaps: park the task, research the gap, persist a
// synthesized heuristic into the versioned knowledge base, register the
// learned capability and requeue the task. A Tier-2 cycle never consumes
// Tier-1 retry budget.
type Tier2 struct {
	plans       *plan.Manager
	researcher  reasoner.Researcher
	synthesizer reasoner.Synthesizer
	knowledge   knowledge.Store
	registry    *capability.Registry
	store       memory.Store
	boundary    escalation.Boundary
	logger      *slog.Logger
}

// NewTier2 creates the Tier-2 handler.
func NewTier2(plans *plan.Manager, researcher reasoner.Researcher, synthesizer reasoner.Synthesizer, kb knowledge.Store, registry *capability.Registry, store memory.Store, boundary escalation.Boundary, logger *slog.Logger) *Tier2 {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tier2{
		plans:       plans,
		researcher:  researcher,
		synthesizer: synthesizer,
		knowledge:   kb,
		registry:    registry,
		store:       store,
		boundary:    boundary,
		logger:      logger,
	}
}

// Handle processes one capability gap. On success the task returns to
// pending with its retry count untouched; on exhausted research or a
// persistent knowledge conflict the task stays blocked and the human
// boundary is notified.
func (t *Tier2) Handle(ctx context.Context, taskID string, attempt reflexion.Attempt, eval reflexion.EvaluationResult) (Outcome, error) {
	task, err := t.plans.Task(ctx, taskID)
	if err != nil {
		return OutcomeNone, err
	}
	retriesBefore := task.RetryCount

	gap := describeGap(attempt)

	// park the task while research runs
	if _, err := t.plans.Update(ctx, task.ID, func(task *core.Task) {
		task.Status = core.TaskStatusBlocked
		task.EscalationTier = 2
		task.Metadata["blocked"] = "pending-research"
		task.Error = gap
	}); err != nil {
		return OutcomeNone, err
	}
	t.logger.Info("protocol.tier2.triggered", "task_id", task.ID, "gap", gap)

	findings, err := t.researcher.Research(ctx, gap)
	if err != nil || len(findings) == 0 {
		return t.giveUp(ctx, task, gap, err)
	}

	heuristic, err := t.synthesizer.Synthesize(ctx, gap, findings)
	if err != nil || strings.TrimSpace(heuristic) == "" {
		return t.giveUp(ctx, task, gap, err)
	}

	docName := knowledgeDocName(attempt)
	doc, err := knowledge.UpdateWithRetry(ctx, t.knowledge, docName, func(current string) (string, error) {
		if current == "" {
			return heuristic, nil
		}
		return current + "\n\n" + heuristic, nil
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeKnowledgeConflict) {
			return t.escalateConflict(ctx, task, gap, err)
		}
		return OutcomeNone, err
	}

	if attempt.Tool != "" {
		t.registry.Register(capability.ManifestEntry{
			ToolName:    attempt.Tool,
			Description: firstSentence(heuristic),
			Confidence:  learnedConfidence,
		})
	}

	// requeue with the retry budget untouched
	if _, err := t.plans.Update(ctx, task.ID, func(task *core.Task) {
		task.Status = core.TaskStatusPending
		task.Error = ""
		delete(task.Metadata, "blocked")
	}); err != nil {
		return OutcomeNone, err
	}
	requeued, err := t.plans.Task(ctx, task.ID)
	if err == nil && requeued.RetryCount != retriesBefore {
		t.logger.Error("protocol.tier2.retry_budget_touched", "task_id", task.ID)
	}

	record := core.NewReflexionRecord(task.MissionID, task.ID)
	record.Tool = attempt.Tool
	record.Action = "researched capability gap"
	record.Observation = fmt.Sprintf("%d findings synthesized into %s v%d", len(findings), doc.Name, doc.Version)
	record.Category = core.CategoryGap
	record.Reflection = firstSentence(heuristic)
	if err := t.store.Append(ctx, record); err != nil {
		return OutcomeNone, errors.New(errors.CodeMemoryError, "research record append failed", err)
	}

	t.logger.Info("protocol.tier2.resolved",
		"task_id", task.ID,
		"document", doc.Name,
		"version", doc.Version)
	return OutcomeRequeued, nil
}

// giveUp reports exhausted research: the task stays blocked.
func (t *Tier2) giveUp(ctx context.Context, task *core.Task, gap string, cause error) (Outcome, error) {
	summary := "research produced no usable findings for: " + gap
	history, _ := t.store.ByTask(ctx, task.ID)
	esc := escalation.Escalation{
		MissionID: task.MissionID,
		TaskID:    task.ID,
		Reason:    escalation.ReasonResearchExhausted,
		Summary:   summary,
		History:   history,
		At:        time.Now().UTC(),
	}
	if err := t.boundary.Escalate(ctx, esc); err != nil {
		t.logger.Error("protocol.tier2.escalation_failed", "task_id", task.ID, "error", err)
	}
	t.logger.Warn("protocol.tier2.exhausted", "task_id", task.ID, "gap", gap, "cause", cause)
	return OutcomeBlocked, errors.New(errors.CodeResearchExhausted, summary, cause).
		WithAttribute("task_id", task.ID)
}

// escalateConflict reports a knowledge write that lost every retry.
func (t *Tier2) escalateConflict(ctx context.Context, task *core.Task, gap string, cause error) (Outcome, error) {
	history, _ := t.store.ByTask(ctx, task.ID)
	esc := escalation.Escalation{
		MissionID: task.MissionID,
		TaskID:    task.ID,
		Reason:    escalation.ReasonKnowledgeConflict,
		Summary:   "knowledge base update kept conflicting while resolving: " + gap,
		History:   history,
		At:        time.Now().UTC(),
	}
	if err := t.boundary.Escalate(ctx, esc); err != nil {
		t.logger.Error("protocol.tier2.escalation_failed", "task_id", task.ID, "error", err)
	}
	return OutcomeBlocked, cause
}

// describeGap builds the research query for a capability gap.
func describeGap(attempt reflexion.Attempt) string {
	if attempt.Tool != "" {
		return fmt.Sprintf("missing capability %q needed for: %s", attempt.Tool, attempt.Action)
	}
	if attempt.Err != nil {
		return attempt.Err.Error()
	}
	return attempt.Observation
}

// knowledgeDocName picks the document a synthesized heuristic lands in.
func knowledgeDocName(attempt reflexion.Attempt) string {
	if attempt.Tool != "" {
		return "capability-" + attempt.Tool
	}
	return "capability-gaps"
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".\n"); i > 0 {
		return s[:i]
	}
	return s
}
