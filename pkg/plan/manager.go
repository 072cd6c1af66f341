package plan

import (
	"context"
	"sort"
	"time"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
)

// Manager mediates every task state transition over a plan store.
type Manager struct {
	store Store
}

// NewManager creates a plan manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create validates and persists a new plan.
func (m *Manager) Create(ctx context.Context, plan *Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return m.store.SavePlan(ctx, plan)
}

// NextRunnable returns the next pending task whose dependencies have all
// succeeded. Ties break to the lowest task ID so scheduling is deterministic
// under identical state. Returns nil when nothing is runnable.
func (m *Manager) NextRunnable(ctx context.Context, missionID string) (*core.Task, error) {
	runnable, err := m.Runnable(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if len(runnable) == 0 {
		return nil, nil
	}
	return runnable[0], nil
}

// Runnable reports every currently runnable task, lowest ID first.
func (m *Manager) Runnable(ctx context.Context, missionID string) ([]*core.Task, error) {
	var out []*core.Task
	tasks, err := m.store.Tasks(ctx, missionID)
	if err != nil {
		return nil, err
	}
	status := make(map[string]core.TaskStatus, len(tasks))
	for _, task := range tasks {
		status[task.ID] = task.Status
	}
	for _, task := range tasks {
		if task.Status != core.TaskStatusPending {
			continue
		}
		ready := true
		for _, dep := range task.DependsOn {
			if status[dep] != core.TaskStatusSucceeded {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Start marks a task running.
func (m *Manager) Start(ctx context.Context, taskID string) (*core.Task, error) {
	return m.transition(ctx, taskID, func(task *core.Task) {
		task.Status = core.TaskStatusRunning
		task.StartedAt = time.Now().UTC()
	})
}

// Succeed marks a task succeeded with its result.
func (m *Manager) Succeed(ctx context.Context, taskID, result string) (*core.Task, error) {
	return m.transition(ctx, taskID, func(task *core.Task) {
		task.Status = core.TaskStatusSucceeded
		task.Result = result
		task.Error = ""
		task.FinishedAt = time.Now().UTC()
	})
}

// Fail marks a task failed. Failed is not terminal; the protocol engine
// decides what happens next.
func (m *Manager) Fail(ctx context.Context, taskID, reason string) (*core.Task, error) {
	return m.transition(ctx, taskID, func(task *core.Task) {
		task.Status = core.TaskStatusFailed
		task.Error = reason
	})
}

// Block parks a task in the terminal blocked state.
func (m *Manager) Block(ctx context.Context, taskID, reason string) (*core.Task, error) {
	return m.transition(ctx, taskID, func(task *core.Task) {
		task.Status = core.TaskStatusBlocked
		task.Error = reason
		task.FinishedAt = time.Now().UTC()
	})
}

// Requeue returns a task to pending, clearing any finish timestamp. Used by
// Tier 1 after injecting a corrective and by Tier 2 after a knowledge update.
func (m *Manager) Requeue(ctx context.Context, taskID string) (*core.Task, error) {
	return m.transition(ctx, taskID, func(task *core.Task) {
		task.Status = core.TaskStatusPending
		task.FinishedAt = time.Time{}
	})
}

// Update applies an arbitrary mutation to a task and persists it.
func (m *Manager) Update(ctx context.Context, taskID string, mutate func(*core.Task)) (*core.Task, error) {
	return m.transition(ctx, taskID, mutate)
}

// IncrementRetry bumps a task's Tier-1 retry counter.
func (m *Manager) IncrementRetry(ctx context.Context, taskID string) (*core.Task, error) {
	return m.transition(ctx, taskID, func(task *core.Task) {
		task.RetryCount++
	})
}

// InjectBefore inserts a new pending task as a prerequisite of blockedTaskID.
// The corrective runs first because the dependent task is not runnable until
// it succeeds. The extended graph stays acyclic: the new node has edges only
// toward an existing node.
func (m *Manager) InjectBefore(ctx context.Context, blockedTaskID string, corrective *core.Task) error {
	blocked, err := m.store.Task(ctx, blockedTaskID)
	if err != nil {
		return err
	}
	if corrective.ID == "" || corrective.ID == blockedTaskID {
		return errors.New(errors.CodeInvalidPlan, "corrective task needs a distinct id", nil).
			WithAttribute("task_id", blockedTaskID)
	}
	corrective.MissionID = blocked.MissionID
	corrective.Status = core.TaskStatusPending
	if err := m.store.SaveTask(ctx, corrective); err != nil {
		return err
	}
	blocked.DependsOn = append(blocked.DependsOn, corrective.ID)
	return m.store.SaveTask(ctx, blocked)
}

// Task returns one task by ID.
func (m *Manager) Task(ctx context.Context, taskID string) (*core.Task, error) {
	return m.store.Task(ctx, taskID)
}

// Tasks returns all tasks for a mission in insertion order.
func (m *Manager) Tasks(ctx context.Context, missionID string) ([]*core.Task, error) {
	return m.store.Tasks(ctx, missionID)
}

// Settled reports whether no task can make further progress: every task is
// terminal, or the only non-terminal tasks wait on blocked or failed ones.
func (m *Manager) Settled(ctx context.Context, missionID string) (bool, error) {
	next, err := m.NextRunnable(ctx, missionID)
	if err != nil {
		return false, err
	}
	if next != nil {
		return false, nil
	}
	tasks, err := m.store.Tasks(ctx, missionID)
	if err != nil {
		return false, err
	}
	for _, task := range tasks {
		if task.Status == core.TaskStatusRunning || task.Status == core.TaskStatusFailed {
			return false, nil
		}
	}
	return true, nil
}

// AllSucceeded reports whether every task in the mission succeeded.
func (m *Manager) AllSucceeded(ctx context.Context, missionID string) (bool, error) {
	tasks, err := m.store.Tasks(ctx, missionID)
	if err != nil {
		return false, err
	}
	for _, task := range tasks {
		if task.Status != core.TaskStatusSucceeded {
			return false, nil
		}
	}
	return len(tasks) > 0, nil
}

func (m *Manager) transition(ctx context.Context, taskID string, mutate func(*core.Task)) (*core.Task, error) {
	task, err := m.store.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	mutate(task)
	if err := m.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}
