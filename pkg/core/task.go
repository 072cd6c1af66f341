package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	// TaskStatusBlocked is terminal pending human input. A task parked for
	// Tier-2 research also sits here, flagged through Metadata["blocked"].
	TaskStatusBlocked TaskStatus = "blocked"
)

// Complexity tags that route a task straight into Tree-of-Thoughts,
// before any linear attempt.
const (
	TagArchitectureSelection = "architecture-selection"
	TagTechnologyChoice      = "technology-choice"
	TagLargeRefactor         = "large-refactor"
)

// Task is a unit of work inside a mission's plan. Dependencies reference
// other task IDs in the same plan; a task may not start before every
// dependency has succeeded.
type Task struct {
	ID             string
	MissionID      string
	Description    string
	DependsOn      []string
	Status         TaskStatus
	RetryCount     int
	EscalationTier int
	Tags           []string
	Result         string
	Error          string
	CreatedAt      time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
	Metadata       map[string]string
}

// NewTask creates a pending task with a generated ID.
func NewTask(missionID, description string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		MissionID:   missionID,
		Description: description,
		Status:      TaskStatusPending,
		CreatedAt:   time.Now().UTC(),
		Metadata:    make(map[string]string),
	}
}

// Terminal reports whether the task reached a terminal state.
// Failed is not terminal: Tier 1 may move it back to pending.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusSucceeded || t.Status == TaskStatusBlocked
}

// HasTag reports whether the task carries the given complexity tag.
func (t *Task) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// HighComplexity reports whether the task belongs to the planning class
// that escalates directly to Tree-of-Thoughts.
func (t *Task) HighComplexity() bool {
	return t.HasTag(TagArchitectureSelection) ||
		t.HasTag(TagTechnologyChoice) ||
		t.HasTag(TagLargeRefactor)
}
