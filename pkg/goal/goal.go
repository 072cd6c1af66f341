// Package goal maintains the live goal state of a mission: the prime
// directive plus its checklist. The manager's Recite is called at the top of
// every cognitive-loop iteration so the directive appears in every assembled
// context, which is what keeps long missions from drifting.
package goal

import (
	"context"
	"sync"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
)

// Store persists goal states by mission.
type Store interface {
	Save(ctx context.Context, state core.GoalState) error
	Load(ctx context.Context, missionID string) (core.GoalState, error)
}

// Manager owns goal-state reads and checklist updates.
type Manager struct {
	store Store
}

// NewManager creates a goal state manager over a store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Init records the goal state for a new mission.
func (m *Manager) Init(ctx context.Context, missionID, primeDirective string, checklist []string) (core.GoalState, error) {
	state := core.GoalState{
		MissionID:      missionID,
		PrimeDirective: primeDirective,
	}
	for _, item := range checklist {
		state.Checklist = append(state.Checklist, core.ChecklistItem{Item: item})
	}
	if err := m.store.Save(ctx, state); err != nil {
		return core.GoalState{}, err
	}
	return state, nil
}

// Recite returns the current goal state for injection into a task context.
func (m *Manager) Recite(ctx context.Context, missionID string) (core.GoalState, error) {
	return m.store.Load(ctx, missionID)
}

// MarkDone checks off a checklist item. Unknown items are ignored so that
// tasks not tied to a checklist entry do not fail their missions.
func (m *Manager) MarkDone(ctx context.Context, missionID, item string) error {
	state, err := m.store.Load(ctx, missionID)
	if err != nil {
		return err
	}
	changed := false
	for i := range state.Checklist {
		if state.Checklist[i].Item == item && !state.Checklist[i].Done {
			state.Checklist[i].Done = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.store.Save(ctx, state)
}

// MemStore is the in-memory goal store.
type MemStore struct {
	mu     sync.RWMutex
	states map[string]core.GoalState
}

// NewMemStore creates an empty in-memory goal store.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]core.GoalState)}
}

// Save implements Store.
func (s *MemStore) Save(_ context.Context, state core.GoalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := state
	copied.Checklist = append([]core.ChecklistItem(nil), state.Checklist...)
	s.states[state.MissionID] = copied
	return nil
}

// Load implements Store.
func (s *MemStore) Load(_ context.Context, missionID string) (core.GoalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[missionID]
	if !ok {
		return core.GoalState{}, errors.New(errors.CodeNotFound, "goal state not found", nil).
			WithAttribute("mission_id", missionID)
	}
	out := state
	out.Checklist = append([]core.ChecklistItem(nil), state.Checklist...)
	return out, nil
}

var _ Store = (*MemStore)(nil)
