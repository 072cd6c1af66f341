package plan

import (
	"context"
	"log/slog"
	"time"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/reasoner"
)

// Decomposer turns a prime directive into a validated plan through the
// planning collaborator. A cyclic or malformed decomposition is rejected
// here, before anything executes.
type Decomposer struct {
	planner reasoner.Planner
	logger  *slog.Logger
}

// NewDecomposer creates a decomposer.
func NewDecomposer(planner reasoner.Planner, logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{planner: planner, logger: logger}
}

// Decompose produces the task DAG for a mission.
func (d *Decomposer) Decompose(ctx context.Context, mission *core.Mission) (*Plan, error) {
	specs, err := d.planner.Decompose(ctx, mission.PrimeDirective)
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "decomposition failed", err).
			WithAttribute("mission_id", mission.ID)
	}
	if len(specs) == 0 {
		return nil, errors.New(errors.CodeInvalidPlan, "decomposition produced no tasks", nil).
			WithAttribute("mission_id", mission.ID)
	}

	built := FromSpecs(mission.ID, specs)
	if err := built.Validate(); err != nil {
		return nil, err
	}
	d.logger.Info("plan.decompose.done",
		"mission_id", mission.ID,
		"tasks", len(built.Tasks))
	return built, nil
}

// FromSpecs builds a plan from task specs without validating it.
func FromSpecs(missionID string, specs []reasoner.TaskSpec) *Plan {
	built := NewPlan(missionID)
	now := time.Now().UTC()
	for _, spec := range specs {
		built.Tasks = append(built.Tasks, &core.Task{
			ID:          spec.ID,
			MissionID:   missionID,
			Description: spec.Description,
			DependsOn:   append([]string(nil), spec.DependsOn...),
			Tags:        append([]string(nil), spec.Tags...),
			Status:      core.TaskStatusPending,
			CreatedAt:   now,
			Metadata:    make(map[string]string),
		})
	}
	return built
}
