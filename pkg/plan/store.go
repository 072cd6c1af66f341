package plan

import (
	"context"
	"sync"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
)

// Store persists plans and their tasks.
type Store interface {
	SavePlan(ctx context.Context, plan *Plan) error
	Plan(ctx context.Context, missionID string) (*Plan, error)
	SaveTask(ctx context.Context, task *core.Task) error
	Task(ctx context.Context, taskID string) (*core.Task, error)
	Tasks(ctx context.Context, missionID string) ([]*core.Task, error)
}

// MemStore is the in-memory plan store. All reads return copies.
type MemStore struct {
	mu    sync.RWMutex
	plans map[string]*Plan      // by mission ID
	tasks map[string]*core.Task // by task ID
	order map[string][]string   // mission ID -> task IDs in insertion order
}

// NewMemStore creates an empty in-memory plan store.
func NewMemStore() *MemStore {
	return &MemStore{
		plans: make(map[string]*Plan),
		tasks: make(map[string]*core.Task),
		order: make(map[string][]string),
	}
}

// SavePlan implements Store.
func (s *MemStore) SavePlan(ctx context.Context, plan *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.MissionID] = &Plan{ID: plan.ID, MissionID: plan.MissionID}
	s.order[plan.MissionID] = nil
	for _, task := range plan.Tasks {
		s.saveTaskLocked(task)
	}
	return nil
}

// Plan implements Store.
func (s *MemStore) Plan(ctx context.Context, missionID string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.plans[missionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "plan not found", nil).
			WithAttribute("mission_id", missionID)
	}
	out := &Plan{ID: stored.ID, MissionID: stored.MissionID}
	for _, id := range s.order[missionID] {
		out.Tasks = append(out.Tasks, copyTask(s.tasks[id]))
	}
	return out, nil
}

// SaveTask implements Store.
func (s *MemStore) SaveTask(ctx context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveTaskLocked(task)
	return nil
}

func (s *MemStore) saveTaskLocked(task *core.Task) {
	if _, exists := s.tasks[task.ID]; !exists {
		s.order[task.MissionID] = append(s.order[task.MissionID], task.ID)
	}
	s.tasks[task.ID] = copyTask(task)
}

// Task implements Store.
func (s *MemStore) Task(ctx context.Context, taskID string) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "task not found", nil).
			WithAttribute("task_id", taskID)
	}
	return copyTask(task), nil
}

// Tasks implements Store.
func (s *MemStore) Tasks(ctx context.Context, missionID string) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Task
	for _, id := range s.order[missionID] {
		out = append(out, copyTask(s.tasks[id]))
	}
	return out, nil
}

func copyTask(task *core.Task) *core.Task {
	copied := *task
	copied.DependsOn = append([]string(nil), task.DependsOn...)
	copied.Tags = append([]string(nil), task.Tags...)
	copied.Metadata = make(map[string]string, len(task.Metadata))
	for k, v := range task.Metadata {
		copied.Metadata[k] = v
	}
	return &copied
}

var _ Store = (*MemStore)(nil)
