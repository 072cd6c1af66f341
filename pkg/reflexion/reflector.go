package reflexion

import (
	"context"
	"log/slog"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/memory"
)

// confidenceDelta is how far one reflexion moves a tool's confidence score.
const confidenceDelta = 0.05

// Reflector turns an evaluation into exactly one episodic record and the
// corresponding capability-confidence adjustment.
type Reflector struct {
	store    memory.Store
	recaller *memory.Recaller
	registry *capability.Registry
	logger   *slog.Logger
}

// NewReflector creates a reflector. The recaller may be nil when no semantic
// index is configured.
func NewReflector(store memory.Store, recaller *memory.Recaller, registry *capability.Registry, logger *slog.Logger) *Reflector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflector{store: store, recaller: recaller, registry: registry, logger: logger}
}

// History returns every record appended for a task, in append order. It is
// what escalation payloads carry across the human boundary.
func (r *Reflector) History(ctx context.Context, taskID string) []core.ReflexionRecord {
	records, err := r.store.ByTask(ctx, taskID)
	if err != nil {
		r.logger.Warn("reflexion.history.failed", "task_id", taskID, "error", err)
		return nil
	}
	return records
}

// Reflect appends one record for the attempt and shifts the invoked tool's
// confidence up on success, down on failure. It never appends more than one
// record per attempt.
func (r *Reflector) Reflect(ctx context.Context, attempt Attempt, eval EvaluationResult) (core.ReflexionRecord, error) {
	record := core.NewReflexionRecord(attempt.MissionID, attempt.TaskID)
	record.Tool = attempt.Tool
	record.Action = attempt.Action
	record.Observation = attempt.Observation
	record.Score = eval.Score
	record.Category = categoryFor(eval.Class)
	record.Reflection = eval.Reflection

	if err := r.store.Append(ctx, record); err != nil {
		return core.ReflexionRecord{}, errors.New(errors.CodeMemoryError, "reflexion append failed", err).
			WithAttribute("task_id", attempt.TaskID)
	}
	if r.recaller != nil {
		if err := r.recaller.Index(ctx, record); err != nil {
			// the durable record exists; a missing index entry only degrades recall
			r.logger.Warn("reflexion.index.failed", "record_id", record.ID, "error", err)
		}
	}

	if attempt.Tool != "" && r.registry != nil {
		delta := confidenceDelta
		if eval.Class != ClassSuccess {
			delta = -confidenceDelta
		}
		r.registry.AdjustConfidence(attempt.Tool, delta)
	}

	r.logger.Debug("reflexion.recorded",
		"task_id", attempt.TaskID,
		"class", string(eval.Class),
		"score", eval.Score)
	return record, nil
}

// categoryFor maps a failure class onto the episodic record category.
func categoryFor(class FailureClass) core.RecordCategory {
	switch class {
	case ClassSuccess:
		return core.CategorySuccess
	case ClassCapabilityGap:
		return core.CategoryGap
	case ClassAmbiguous:
		return core.CategoryAmbiguous
	default:
		return core.CategoryTransient
	}
}
