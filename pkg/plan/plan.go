// Package plan owns the task DAG: decomposition of a prime directive into
// tasks, cycle-free validation, deterministic scheduling, and the injection
// primitive the protocol engine uses to place corrective work ahead of a
// failed task.
package plan

import (
	"sort"

	"github.com/google/uuid"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
)

// Plan is the dependency graph of tasks for one mission.
type Plan struct {
	ID        string
	MissionID string
	Tasks     []*core.Task
}

// NewPlan creates an empty plan for a mission.
func NewPlan(missionID string) *Plan {
	return &Plan{ID: uuid.NewString(), MissionID: missionID}
}

// Task returns the task with the given ID, or nil.
func (p *Plan) Task(id string) *core.Task {
	for _, task := range p.Tasks {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// Validate rejects duplicate IDs, dangling dependency references and cycles.
// An invalid plan is never executed.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Tasks))
	for _, task := range p.Tasks {
		if task.ID == "" {
			return errors.New(errors.CodeInvalidPlan, "task without id", nil)
		}
		if seen[task.ID] {
			return errors.New(errors.CodeInvalidPlan, "duplicate task id", nil).
				WithAttribute("task_id", task.ID)
		}
		seen[task.ID] = true
	}
	for _, task := range p.Tasks {
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				return errors.New(errors.CodeInvalidPlan, "dependency references unknown task", nil).
					WithAttribute("task_id", task.ID).
					WithAttribute("depends_on", dep)
			}
			if dep == task.ID {
				return errors.New(errors.CodeInvalidPlan, "task depends on itself", nil).
					WithAttribute("task_id", task.ID)
			}
		}
	}
	return p.checkAcyclic()
}

// checkAcyclic runs Kahn's algorithm; leftover nodes mean a cycle.
func (p *Plan) checkAcyclic() error {
	indegree := make(map[string]int, len(p.Tasks))
	dependents := make(map[string][]string, len(p.Tasks))
	for _, task := range p.Tasks {
		indegree[task.ID] += 0
		for _, dep := range task.DependsOn {
			indegree[task.ID]++
			dependents[dep] = append(dependents[dep], task.ID)
		}
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(p.Tasks) {
		var cyclic []string
		for id, degree := range indegree {
			if degree > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return errors.New(errors.CodeInvalidPlan, "plan contains a dependency cycle", nil).
			WithContext("tasks_in_cycle", cyclic)
	}
	return nil
}
